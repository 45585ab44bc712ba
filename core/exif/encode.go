package exif

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

// encoder rebuilds a TIFF stream from an IFD tree. Offsets are never
// patched in the source bytes; every position is recomputed from the
// layout of the fresh buffer.
type encoder struct {
	order binary.ByteOrder
	buf   []byte
}

// encodeTree serializes root and everything it links to behind a TIFF
// header. Layout: header, IFD0 table, IFD0 value pool, IFD0 sub-IFDs in
// tag order, then the next chain, each directory followed by its pool.
func encodeTree(root *IFD, order binary.ByteOrder) ([]byte, error) {
	e := &encoder{order: order, buf: make([]byte, HeaderSize, 256)}
	PutHeader(e.buf, order, HeaderSize)
	pos, err := e.writeIFD(root)
	if err != nil {
		return nil, err
	}
	order.PutUint32(e.buf[4:], pos)
	return e.buf, nil
}

// align pads the buffer to the next word (2 byte) boundary.
func (e *encoder) align() {
	if len(e.buf)%2 != 0 {
		e.buf = append(e.buf, 0)
	}
}

func (e *encoder) offset() (uint32, error) {
	if uint64(len(e.buf)) > math.MaxUint32 {
		return 0, errors.Wrapf(core.ErrSegmentTooLarge, "TIFF stream exceeds 4 GiB")
	}
	return uint32(len(e.buf)), nil
}

// writeIFD appends ifd and its descendants and returns its position.
func (e *encoder) writeIFD(ifd *IFD) (uint32, error) {
	e.align()
	pos, err := e.offset()
	if err != nil {
		return 0, err
	}
	if len(ifd.Entries) > math.MaxUint16 {
		return 0, errors.Wrapf(core.ErrSegmentTooLarge, "%s IFD has %d entries", ifd.Kind, len(ifd.Entries))
	}
	order := e.order
	entries := ifd.Entries
	e.buf = append(e.buf, make([]byte, tableOverhead+len(entries)*tableEntrySize)...)
	order.PutUint16(e.buf[pos:], uint16(len(entries)))

	// Fields whose value is a position in the rebuilt stream.
	patches := make(map[uint16]uint32)

	p := pos + 2
	for i, ent := range entries {
		if i > 0 && ent.Tag <= entries[i-1].Tag {
			return 0, errors.Errorf("%s IFD: tags not strictly ascending at 0x%04X", ifd.Kind, ent.Tag)
		}
		v := ent.Value
		if v == nil {
			return 0, errors.Wrapf(core.ErrTypeMismatch, "%s IFD: tag 0x%04X has no value", ifd.Kind, ent.Tag)
		}
		switch {
		case ifd.Sub[ent.Tag] != nil, ent.Tag == TagJPEGInterchangeFormat && ifd.Thumbnail != nil:
			v = Longs{0}
			patches[ent.Tag] = p + 8
		case ent.Tag == TagJPEGInterchangeFormatLength && ifd.Thumbnail != nil:
			v = Longs{uint32(len(ifd.Thumbnail))}
		}

		order.PutUint16(e.buf[p:], ent.Tag)
		order.PutUint16(e.buf[p+2:], uint16(v.Type()))
		order.PutUint32(e.buf[p+4:], v.Count())
		data := v.encode(order)
		if len(data) <= 4 {
			copy(e.buf[p+8:p+12], data)
		} else {
			e.align()
			off, err := e.offset()
			if err != nil {
				return 0, err
			}
			e.buf = append(e.buf, data...)
			order.PutUint32(e.buf[p+8:], off)
		}
		p += tableEntrySize
	}
	nextField := p

	if ifd.Thumbnail != nil {
		if field, ok := patches[TagJPEGInterchangeFormat]; ok {
			off, err := e.offset()
			if err != nil {
				return 0, err
			}
			e.buf = append(e.buf, ifd.Thumbnail...)
			order.PutUint32(e.buf[field:], off)
		}
	}

	for _, tag := range ifd.subTags() {
		field, ok := patches[tag]
		if !ok {
			return 0, errors.Errorf("%s IFD: sub-IFD 0x%04X has no pointer entry", ifd.Kind, tag)
		}
		off, err := e.writeIFD(ifd.Sub[tag])
		if err != nil {
			return 0, err
		}
		order.PutUint32(e.buf[field:], off)
	}

	if ifd.Next != nil {
		off, err := e.writeIFD(ifd.Next)
		if err != nil {
			return 0, err
		}
		order.PutUint32(e.buf[nextField:], off)
	}
	return pos, nil
}
