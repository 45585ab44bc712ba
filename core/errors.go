package core

import (
	"github.com/pkg/errors"
)

// Error kinds surfaced by the engine. Every returned error wraps exactly one
// of these; match with errors.Is.
var (
	ErrInvalidFormat      = errors.New("invalid format")
	ErrMalformedContainer = errors.New("malformed container")
	ErrTruncatedIfd       = errors.New("truncated IFD")
	ErrUnsupportedType    = errors.New("unsupported value type")
	ErrUnknownTag         = errors.New("unknown tag")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrSegmentTooLarge    = errors.New("segment too large")
)

var errorKinds = []struct {
	err  error
	name string
}{
	{ErrInvalidFormat, "InvalidFormat"},
	{ErrMalformedContainer, "MalformedContainer"},
	{ErrTruncatedIfd, "TruncatedIfd"},
	{ErrUnsupportedType, "UnsupportedType"},
	{ErrUnknownTag, "UnknownTag"},
	{ErrTypeMismatch, "TypeMismatch"},
	{ErrSegmentTooLarge, "SegmentTooLarge"},
}

// KindOf names the error kind wrapped by err, or "" if err is nil or not an
// engine error.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
