package image

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

// JPEG markers used by the scanner.
const (
	markerTEM  = 0x01
	markerRST0 = 0xD0 // RSTn = RST0+n, n = 0-7
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
)

// MaxJPEGPayload is the largest marker segment payload: the 2-byte length
// field counts itself, so 0xFFFF - 2.
const MaxJPEGPayload = 65533

var (
	jpegExifPrefix = []byte("Exif\x00\x00")
	jfifPrefix     = []byte("JFIF\x00")
)

type jpegSegment struct {
	marker byte
	start  int   // first 0xFF of the marker
	end    int   // one past the payload
	data   Range // payload, after the length field
}

// scanJPEG walks marker segments from after SOI up to and including SOS,
// or to EOI or the end of the buffer.
func scanJPEG(data []byte) ([]jpegSegment, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != markerSOI {
		return nil, errors.Wrap(core.ErrMalformedContainer, "jpeg: SOI marker not found")
	}
	var segs []jpegSegment
	i := 2
	for i < len(data) {
		if data[i] != 0xFF {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "jpeg: 0xFF expected at offset %d, found 0x%02X", i, data[i])
		}
		start := i
		// Skip 0xFF fill bytes.
		for i < len(data) && data[i] == 0xFF {
			i++
		}
		if i >= len(data) {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "jpeg: truncated marker at offset %d", start)
		}
		marker := data[i]
		i++
		if marker == 0 {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "jpeg: invalid marker 0 at offset %d", start)
		}
		if marker == markerEOI || marker == markerTEM || (marker >= markerRST0 && marker <= markerRST0+7) {
			segs = append(segs, jpegSegment{marker: marker, start: start, end: i, data: Range{i, i}})
			if marker == markerEOI {
				break
			}
			continue
		}
		if i+2 > len(data) {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "jpeg: truncated length for marker 0x%02X at offset %d", marker, start)
		}
		length := int(binary.BigEndian.Uint16(data[i:]))
		if length < 2 {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "jpeg: invalid length %d for marker 0x%02X at offset %d", length, marker, start)
		}
		end := i + length
		if end > len(data) {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "jpeg: marker 0x%02X at offset %d overruns buffer (%d > %d)", marker, start, end, len(data))
		}
		segs = append(segs, jpegSegment{marker: marker, start: start, end: end, data: Range{i + 2, end}})
		i = end
		if marker == markerSOS {
			break
		}
	}
	return segs, nil
}

type jpegContainer struct {
	keepJFIFFirst bool
}

func (*jpegContainer) Format() core.FormatID { return core.FmtJPEG }

func (*jpegContainer) Locate(data []byte) (*Location, error) {
	segs, err := scanJPEG(data)
	if err != nil {
		return nil, err
	}
	var loc *Location
	for _, s := range segs {
		if s.marker != markerAPP1 || !bytes.HasPrefix(data[s.data.Start:s.data.End], jpegExifPrefix) {
			continue
		}
		if loc == nil {
			loc = &Location{
				Segment: Range{s.start, s.end},
				Payload: Range{s.data.Start + len(jpegExifPrefix), s.end},
			}
			continue
		}
		loc.Duplicates = append(loc.Duplicates, Range{s.start, s.end})
	}
	return loc, nil
}

// InsertionPoint places APP1 directly after SOI. With keepJFIFFirst a
// leading APP0/JFIF segment stays first and APP1 follows it.
func (c *jpegContainer) InsertionPoint(data []byte) (int, error) {
	segs, err := scanJPEG(data)
	if err != nil {
		return 0, err
	}
	if c.keepJFIFFirst && len(segs) > 0 && segs[0].marker == markerAPP0 &&
		bytes.HasPrefix(data[segs[0].data.Start:segs[0].data.End], jfifPrefix) {
		return segs[0].end, nil
	}
	return 2, nil
}

func (c *jpegContainer) Splice(data []byte, loc *Location, tiff []byte) ([]byte, error) {
	payloadLen := len(jpegExifPrefix) + len(tiff)
	if payloadLen > MaxJPEGPayload {
		return nil, errors.Wrapf(core.ErrSegmentTooLarge, "jpeg: APP1 payload %d bytes exceeds %d", payloadLen, MaxJPEGPayload)
	}
	seg := make([]byte, 4, 4+payloadLen)
	seg[0], seg[1] = 0xFF, markerAPP1
	binary.BigEndian.PutUint16(seg[2:], uint16(payloadLen+2))
	seg = append(seg, jpegExifPrefix...)
	seg = append(seg, tiff...)

	at := 0
	if loc == nil {
		var err error
		if at, err = c.InsertionPoint(data); err != nil {
			return nil, err
		}
	}
	return applyCuts(data, segmentCuts(loc, at, seg)), nil
}

func (*jpegContainer) Remove(data []byte, loc *Location) ([]byte, error) {
	return applyCuts(data, removalCuts(loc)), nil
}
