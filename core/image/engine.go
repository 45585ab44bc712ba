package image

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ankit-chaubey/exif-surgery/core"
	"github.com/ankit-chaubey/exif-surgery/core/exif"
)

// Options configures an Engine.
type Options struct {
	// ByteOrder is used for segments created from scratch. Existing
	// segments keep their own order.
	ByteOrder binary.ByteOrder
	// Strict rejects unknown IFD value types instead of carrying them
	// as opaque entries.
	Strict bool
	// KeepJFIFFirst inserts a new JPEG APP1 after a leading APP0/JFIF
	// segment rather than directly after SOI.
	KeepJFIFFirst bool
	// PromoteWebP adds a VP8X header to simple-format WebP files so that
	// readers honour the EXIF chunk.
	PromoteWebP bool
	Logger      zerolog.Logger
}

// DefaultOptions returns little-endian, tolerant decoding, APP1 right after
// SOI and WebP promotion enabled, with logging disabled.
func DefaultOptions() Options {
	return Options{
		ByteOrder:   binary.LittleEndian,
		PromoteWebP: true,
		Logger:      zerolog.Nop(),
	}
}

// Engine runs locate, decode, mutate, encode and splice over an in-memory
// container. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine returns an Engine using opts.
func NewEngine(opts Options) *Engine {
	if opts.ByteOrder == nil {
		opts.ByteOrder = binary.LittleEndian
	}
	return &Engine{opts: opts}
}

// EmbedTimestamp writes timestamp as DateTimeOriginal into the EXIF segment
// of an image, creating the segment when it is missing. format is one of
// "jpeg", "jpg", "png" or "webp". The input is not modified; on error the
// returned slice is nil.
func EmbedTimestamp(data []byte, timestamp string, format string) ([]byte, error) {
	id, err := core.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return NewEngine(DefaultOptions()).Embed(data, timestamp, id)
}

// Embed sets DateTimeOriginal to timestamp.
func (e *Engine) Embed(data []byte, timestamp string, format core.FormatID) ([]byte, error) {
	return e.SetTags(data, format, map[string]exif.Value{
		"DateTimeOriginal": exif.ASCIIText(timestamp),
	})
}

// SetTags validates and sets every tag in tags. Either all tags are
// applied or the call fails and nothing is written.
func (e *Engine) SetTags(data []byte, format core.FormatID, tags map[string]exif.Value) ([]byte, error) {
	return e.Edit(data, format, func(m *exif.Metadata) error {
		for _, name := range sortedKeys(tags) {
			if err := m.SetTag(name, tags[name]); err != nil {
				return errors.WithMessagef(err, "set %s", name)
			}
		}
		return nil
	})
}

// Edit decodes the container's EXIF segment (or starts from an empty model
// when there is none), applies mutate and splices the re-encoded segment
// back. Bytes outside the EXIF segment are preserved.
func (e *Engine) Edit(data []byte, format core.FormatID, mutate func(*exif.Metadata) error) ([]byte, error) {
	c, err := ContainerFor(format, e.opts)
	if err != nil {
		return nil, err
	}
	m, loc, err := e.read(c, data)
	if err != nil {
		return nil, err
	}
	if err := mutate(m); err != nil {
		return nil, err
	}
	tiff, err := m.Encode()
	if err != nil {
		return nil, err
	}
	out, err := c.Splice(data, loc, tiff)
	if err != nil {
		return nil, err
	}
	e.opts.Logger.Debug().
		Str("format", format.String()).
		Bool("replaced", loc != nil).
		Int("segment", len(tiff)).
		Int("in", len(data)).
		Int("out", len(out)).
		Msg("exif segment written")
	return out, nil
}

// Strip removes the EXIF segment. A container without one is returned as
// an unchanged copy.
func (e *Engine) Strip(data []byte, format core.FormatID) ([]byte, error) {
	c, err := ContainerFor(format, e.opts)
	if err != nil {
		return nil, err
	}
	loc, err := c.Locate(data)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		e.opts.Logger.Debug().Str("format", format.String()).Msg("no exif segment to strip")
		return append([]byte(nil), data...), nil
	}
	out, err := c.Remove(data, loc)
	if err != nil {
		return nil, err
	}
	e.opts.Logger.Debug().
		Str("format", format.String()).
		Int("removed", len(data)-len(out)).
		Msg("exif segment stripped")
	return out, nil
}

// Read returns the decoded EXIF model, or nil when the container has no
// EXIF segment.
func (e *Engine) Read(data []byte, format core.FormatID) (*exif.Metadata, error) {
	c, err := ContainerFor(format, e.opts)
	if err != nil {
		return nil, err
	}
	m, loc, err := e.read(c, data)
	if err != nil || loc == nil {
		return nil, err
	}
	return m, nil
}

// read locates and decodes the segment. When there is none it returns an
// empty model in the configured byte order and a nil location.
func (e *Engine) read(c Container, data []byte) (*exif.Metadata, *Location, error) {
	loc, err := c.Locate(data)
	if err != nil {
		return nil, nil, err
	}
	if loc == nil {
		e.opts.Logger.Debug().Str("format", c.Format().String()).Msg("no exif segment, starting empty")
		return exif.New(e.opts.ByteOrder), nil, nil
	}
	m, err := exif.Decode(loc.TIFF(data), exif.DecodeOptions{Strict: e.opts.Strict})
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "decode %s exif at offset %d", c.Format(), loc.Segment.Start)
	}
	ev := e.opts.Logger.Debug().
		Str("format", c.Format().String()).
		Int("offset", loc.Segment.Start).
		Int("size", loc.Payload.Len()).
		Int("duplicates", len(loc.Duplicates))
	if w := m.Warnings(); w != nil {
		ev = ev.AnErr("warnings", w)
	}
	ev.Msg("exif segment located")
	return m, loc, nil
}

func sortedKeys(m map[string]exif.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
