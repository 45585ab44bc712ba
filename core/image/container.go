package image

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

// Range is a half-open byte range [Start, End) within a container.
type Range struct {
	Start, End int
}

// Len returns the number of bytes in the range.
func (r Range) Len() int { return r.End - r.Start }

// Location describes the EXIF segment found in a container.
type Location struct {
	// Segment covers the whole framed segment: marker or chunk header,
	// payload, and any trailing CRC or padding.
	Segment Range
	// Payload covers the TIFF stream inside the segment.
	Payload Range
	// Duplicates are further EXIF segments. They are ignored on read and
	// removed on write.
	Duplicates []Range
}

// TIFF returns the TIFF stream of the located segment.
func (l *Location) TIFF(data []byte) []byte {
	return data[l.Payload.Start:l.Payload.End]
}

// Container is the per-format capability shared by JPEG, PNG and WebP:
// find the EXIF segment, choose where a new one goes, and write it back.
type Container interface {
	Format() core.FormatID
	// Locate returns the first EXIF segment, or nil if there is none.
	Locate(data []byte) (*Location, error)
	// InsertionPoint returns the offset at which a new segment is placed.
	InsertionPoint(data []byte) (int, error)
	// Splice replaces the segment at loc (or inserts one when loc is nil)
	// with a freshly framed segment holding tiff, and drops duplicates.
	Splice(data []byte, loc *Location, tiff []byte) ([]byte, error)
	// Remove drops every EXIF segment described by loc.
	Remove(data []byte, loc *Location) ([]byte, error)
}

// ContainerFor returns the container variant for a format.
func ContainerFor(id core.FormatID, opts Options) (Container, error) {
	switch id {
	case core.FmtJPEG:
		return &jpegContainer{keepJFIFFirst: opts.KeepJFIFFirst}, nil
	case core.FmtPNG:
		return &pngContainer{}, nil
	case core.FmtWebP:
		return &webpContainer{promote: opts.PromoteWebP}, nil
	}
	return nil, errors.Wrapf(core.ErrInvalidFormat, "no container for %q", string(id))
}

// cut replaces the bytes of At with With. An empty At inserts.
type cut struct {
	At   Range
	With []byte
}

// applyCuts builds a new buffer from data with every cut applied. Cuts must
// not overlap; bytes outside them are copied unchanged.
func applyCuts(data []byte, cuts []cut) []byte {
	sort.SliceStable(cuts, func(i, j int) bool { return cuts[i].At.Start < cuts[j].At.Start })
	size := len(data)
	for _, c := range cuts {
		size += len(c.With) - c.At.Len()
	}
	out := make([]byte, 0, size)
	pos := 0
	for _, c := range cuts {
		out = append(out, data[pos:c.At.Start]...)
		out = append(out, c.With...)
		pos = c.At.End
	}
	return append(out, data[pos:]...)
}

// segmentCuts returns the cuts that put segment in place of loc (or at
// insertAt when loc is nil) and delete the duplicates.
func segmentCuts(loc *Location, insertAt int, segment []byte) []cut {
	if loc == nil {
		return []cut{{At: Range{insertAt, insertAt}, With: segment}}
	}
	cuts := []cut{{At: loc.Segment, With: segment}}
	for _, d := range loc.Duplicates {
		cuts = append(cuts, cut{At: d})
	}
	return cuts
}

// removalCuts returns the cuts deleting every segment of loc.
func removalCuts(loc *Location) []cut {
	cuts := []cut{{At: loc.Segment}}
	for _, d := range loc.Duplicates {
		cuts = append(cuts, cut{At: d})
	}
	return cuts
}
