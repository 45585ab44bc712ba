package image

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

// VP8X feature flags.
const (
	vp8xFlagExif  = 0x08
	vp8xFlagAlpha = 0x10
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	vp8xPayloadSize = 10
)

type riffChunk struct {
	id    string
	start int   // chunk id
	end   int   // one past the payload and its pad byte
	data  Range // payload without padding
}

type webpFile struct {
	chunks  []riffChunk
	riffEnd int // 8 + declared RIFF size
}

// scanWebP walks the RIFF chunks of a WebP file. Bytes after the declared
// RIFF size are left alone.
func scanWebP(data []byte) (*webpFile, error) {
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, errors.Wrap(core.ErrMalformedContainer, "webp: RIFF/WEBP header not found")
	}
	riffEnd := uint64(binary.LittleEndian.Uint32(data[4:])) + 8
	if riffEnd > uint64(len(data)) {
		return nil, errors.Wrapf(core.ErrMalformedContainer, "webp: RIFF size %d overruns buffer of %d bytes", riffEnd-8, len(data))
	}
	f := &webpFile{riffEnd: int(riffEnd)}
	i := riffHeaderSize
	for i < f.riffEnd {
		if i+chunkHeaderSize > f.riffEnd {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "webp: truncated chunk header at offset %d", i)
		}
		id := string(data[i : i+4])
		size := uint64(binary.LittleEndian.Uint32(data[i+4:]))
		payloadEnd := uint64(i) + chunkHeaderSize + size
		if payloadEnd > uint64(f.riffEnd) {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "webp: chunk %q at offset %d overruns RIFF", id, i)
		}
		end := payloadEnd + size&1
		if end > uint64(f.riffEnd) {
			// Some writers drop the final pad byte.
			end = payloadEnd
		}
		f.chunks = append(f.chunks, riffChunk{id: id, start: i, end: int(end), data: Range{i + chunkHeaderSize, int(payloadEnd)}})
		i = int(end)
	}
	if len(f.chunks) == 0 {
		return nil, errors.Wrap(core.ErrMalformedContainer, "webp: no chunks")
	}
	switch f.chunks[0].id {
	case "VP8 ", "VP8L", "VP8X":
	default:
		return nil, errors.Wrapf(core.ErrMalformedContainer, "webp: unexpected first chunk %q", f.chunks[0].id)
	}
	return f, nil
}

// riffChunkBytes frames payload as a RIFF chunk, padded to even length.
func riffChunkBytes(id string, payload []byte) []byte {
	b := make([]byte, chunkHeaderSize, chunkHeaderSize+len(payload)+1)
	copy(b, id)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(payload)))
	b = append(b, payload...)
	if len(payload)%2 == 1 {
		b = append(b, 0)
	}
	return b
}

// canvasSize reads the frame dimensions from a VP8 or VP8L bitstream
// header. ok is false when the header cannot be parsed.
func canvasSize(id string, p []byte) (w, h int, alpha, ok bool) {
	switch id {
	case "VP8 ":
		// 3-byte frame tag, start code 9d 01 2a, then 14-bit width and height.
		if len(p) < 10 || p[0]&1 != 0 || p[3] != 0x9d || p[4] != 0x01 || p[5] != 0x2a {
			return 0, 0, false, false
		}
		w = int(binary.LittleEndian.Uint16(p[6:]) & 0x3fff)
		h = int(binary.LittleEndian.Uint16(p[8:]) & 0x3fff)
		return w, h, false, w > 0 && h > 0
	case "VP8L":
		if len(p) < 5 || p[0] != 0x2f {
			return 0, 0, false, false
		}
		bits := binary.LittleEndian.Uint32(p[1:])
		w = int(bits&0x3fff) + 1
		h = int((bits>>14)&0x3fff) + 1
		return w, h, bits>>28&1 == 1, true
	}
	return 0, 0, false, false
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

// vp8xPayload builds the extended-format header for a canvas.
func vp8xPayload(flags byte, w, h int) []byte {
	p := make([]byte, vp8xPayloadSize)
	p[0] = flags
	putUint24(p[4:], uint32(w-1))
	putUint24(p[7:], uint32(h-1))
	return p
}

type webpContainer struct {
	promote bool
}

func (*webpContainer) Format() core.FormatID { return core.FmtWebP }

func (*webpContainer) Locate(data []byte) (*Location, error) {
	f, err := scanWebP(data)
	if err != nil {
		return nil, err
	}
	var loc *Location
	for _, c := range f.chunks {
		if c.id != "EXIF" {
			continue
		}
		if loc == nil {
			loc = &Location{Segment: Range{c.start, c.end}, Payload: c.data}
			continue
		}
		loc.Duplicates = append(loc.Duplicates, Range{c.start, c.end})
	}
	return loc, nil
}

// InsertionPoint places EXIF after the leading VP8X, VP8 or VP8L chunk.
func (*webpContainer) InsertionPoint(data []byte) (int, error) {
	f, err := scanWebP(data)
	if err != nil {
		return 0, err
	}
	return f.chunks[0].end, nil
}

func (c *webpContainer) Splice(data []byte, loc *Location, tiff []byte) ([]byte, error) {
	f, err := scanWebP(data)
	if err != nil {
		return nil, err
	}
	if uint64(len(tiff)) > math.MaxUint32-1 {
		return nil, errors.Wrapf(core.ErrSegmentTooLarge, "webp: EXIF payload %d bytes", len(tiff))
	}
	first := f.chunks[0]
	segment := riffChunkBytes("EXIF", tiff)
	if loc == nil && (first.end-first.start)%2 == 1 {
		// The leading chunk lost its pad byte; restore it so the new chunk
		// starts on an even offset.
		segment = append([]byte{0}, segment...)
	}
	cuts := segmentCuts(loc, first.end, segment)

	if first.id != "VP8X" && c.promote {
		if w, h, alpha, ok := canvasSize(first.id, data[first.data.Start:first.data.End]); ok {
			flags := byte(vp8xFlagExif)
			if alpha {
				flags |= vp8xFlagAlpha
			}
			cuts = append(cuts, cut{At: Range{riffHeaderSize, riffHeaderSize}, With: riffChunkBytes("VP8X", vp8xPayload(flags, w, h))})
		}
	}
	out := applyCuts(data, cuts)
	if first.id == "VP8X" && first.data.Len() >= vp8xPayloadSize {
		// The VP8X chunk precedes every cut, so its offset is unchanged.
		out[first.data.Start] |= vp8xFlagExif
	}
	if err := fixRIFFSize(out, f.riffEnd+len(out)-len(data)); err != nil {
		return nil, err
	}
	return out, nil
}

func (*webpContainer) Remove(data []byte, loc *Location) ([]byte, error) {
	f, err := scanWebP(data)
	if err != nil {
		return nil, err
	}
	out := applyCuts(data, removalCuts(loc))
	if first := f.chunks[0]; first.id == "VP8X" && first.data.Len() >= vp8xPayloadSize {
		out[first.data.Start] &^= vp8xFlagExif
	}
	if err := fixRIFFSize(out, f.riffEnd+len(out)-len(data)); err != nil {
		return nil, err
	}
	return out, nil
}

// fixRIFFSize rewrites the RIFF size field for a body ending at riffEnd.
func fixRIFFSize(out []byte, riffEnd int) error {
	size := uint64(riffEnd - 8)
	if size > math.MaxUint32 {
		return errors.Wrapf(core.ErrSegmentTooLarge, "webp: RIFF size %d", size)
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(size))
	return nil
}
