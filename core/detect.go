package core

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
)

// FormatID enumerates every supported container format.
type FormatID string

const (
	FmtJPEG FormatID = "jpeg"
	FmtPNG  FormatID = "png"
	FmtWebP FormatID = "webp"

	FmtUnknown FormatID = "unknown"
)

// formatNames maps the accepted lowercase format strings to format IDs.
var formatNames = map[string]FormatID{
	"jpeg": FmtJPEG,
	"jpg":  FmtJPEG,
	"png":  FmtPNG,
	"webp": FmtWebP,
}

// extMap maps lowercase extensions to format IDs.
var extMap = map[string]FormatID{
	".jpg":  FmtJPEG,
	".jpeg": FmtJPEG,
	".jpe":  FmtJPEG,
	".png":  FmtPNG,
	".webp": FmtWebP,
}

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// ParseFormat resolves a caller-supplied format string.
func ParseFormat(s string) (FormatID, error) {
	if id, ok := formatNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return id, nil
	}
	return FmtUnknown, errors.Wrapf(ErrInvalidFormat, "format %q", s)
}

// String returns a display name for the format.
func (id FormatID) String() string {
	switch id {
	case FmtJPEG:
		return "JPEG"
	case FmtPNG:
		return "PNG"
	case FmtWebP:
		return "WebP"
	}
	return "unknown"
}

// DetectFormat returns the FormatID for an in-memory container, first by
// magic bytes and falling back to the name hint's extension.
func DetectFormat(data []byte, nameHint string) FormatID {
	if id := detectMagic(data); id != FmtUnknown {
		return id
	}
	dot := strings.LastIndex(nameHint, ".")
	if dot >= 0 {
		if id, ok := extMap[strings.ToLower(nameHint[dot:])]; ok {
			return id
		}
	}
	return FmtUnknown
}

func detectMagic(b []byte) FormatID {
	if len(b) < 4 {
		return FmtUnknown
	}
	switch {
	// JPEG: FF D8 FF
	case b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return FmtJPEG
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	case bytes.HasPrefix(b, pngSignature):
		return FmtPNG
	// WebP: RIFF????WEBP
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return FmtWebP
	}
	return FmtUnknown
}
