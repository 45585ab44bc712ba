package image

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

var pngSignature = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

// MaxPNGChunk is the largest chunk payload PNG allows (2^31 - 1).
const MaxPNGChunk = math.MaxInt32

type pngChunk struct {
	typ   string
	start int   // length field
	end   int   // one past the CRC
	data  Range // payload
}

// scanPNG walks chunks from after the signature up to IEND or the end of
// the buffer. The first chunk must be IHDR.
func scanPNG(data []byte) ([]pngChunk, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, errors.Wrap(core.ErrMalformedContainer, "png: signature not found")
	}
	var chunks []pngChunk
	i := len(pngSignature)
	for i < len(data) {
		if i+8 > len(data) {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "png: truncated chunk header at offset %d", i)
		}
		length := uint64(binary.BigEndian.Uint32(data[i:]))
		typ := string(data[i+4 : i+8])
		end := uint64(i) + 12 + length
		if length > MaxPNGChunk || end > uint64(len(data)) {
			return nil, errors.Wrapf(core.ErrMalformedContainer, "png: chunk %q at offset %d overruns buffer", typ, i)
		}
		chunks = append(chunks, pngChunk{typ: typ, start: i, end: int(end), data: Range{i + 8, int(end) - 4}})
		i = int(end)
		if typ == "IEND" {
			break
		}
	}
	if len(chunks) == 0 || chunks[0].typ != "IHDR" {
		return nil, errors.Wrap(core.ErrMalformedContainer, "png: IHDR must be the first chunk")
	}
	return chunks, nil
}

// pngChunkBytes frames payload as a chunk with a CRC over type and payload.
func pngChunkBytes(typ string, payload []byte) []byte {
	b := make([]byte, 8, 12+len(payload))
	binary.BigEndian.PutUint32(b, uint32(len(payload)))
	copy(b[4:], typ)
	b = append(b, payload...)
	crc := crc32.ChecksumIEEE(b[4:])
	return binary.BigEndian.AppendUint32(b, crc)
}

type pngContainer struct{}

func (*pngContainer) Format() core.FormatID { return core.FmtPNG }

func (*pngContainer) Locate(data []byte) (*Location, error) {
	chunks, err := scanPNG(data)
	if err != nil {
		return nil, err
	}
	var loc *Location
	for _, c := range chunks {
		if c.typ != "eXIf" {
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

// InsertionPoint places eXIf right after IHDR, which is always before the
// first IDAT.
func (*pngContainer) InsertionPoint(data []byte) (int, error) {
	chunks, err := scanPNG(data)
	if err != nil {
		return 0, err
	}
	return chunks[0].end, nil
}

func (c *pngContainer) Splice(data []byte, loc *Location, tiff []byte) ([]byte, error) {
	if len(tiff) > MaxPNGChunk {
		return nil, errors.Wrapf(core.ErrSegmentTooLarge, "png: eXIf payload %d bytes", len(tiff))
	}
	at := 0
	if loc == nil {
		var err error
		if at, err = c.InsertionPoint(data); err != nil {
			return nil, err
		}
	}
	return applyCuts(data, segmentCuts(loc, at, pngChunkBytes("eXIf", tiff))), nil
}

func (*pngContainer) Remove(data []byte, loc *Location) ([]byte, error) {
	return applyCuts(data, removalCuts(loc)), nil
}
