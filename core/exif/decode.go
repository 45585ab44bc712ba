package exif

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

// HeaderSize is the size of a TIFF header: byte order (2 bytes), magic
// number (2 bytes), IFD0 position (4 bytes).
const HeaderSize = 8

const (
	tableOverhead  = 6 // 2 bytes for the entry count and 4 for the next IFD position.
	tableEntrySize = 12
)

// DecodeOptions controls decoding policy.
type DecodeOptions struct {
	// Strict rejects entries whose type code is outside the TIFF
	// enumeration with ErrUnsupportedType. By default such entries are
	// kept as Opaque values and reported as warnings.
	Strict bool
}

// GetHeader reads a TIFF header and returns the byte order and the position
// of IFD0.
func GetHeader(buf []byte) (binary.ByteOrder, uint32, error) {
	if len(buf) < HeaderSize {
		return nil, 0, errors.Wrapf(core.ErrTruncatedIfd, "TIFF header needs %d bytes, have %d", HeaderSize, len(buf))
	}
	var order binary.ByteOrder
	switch {
	case buf[0] == 'I' && buf[1] == 'I':
		order = binary.LittleEndian
	case buf[0] == 'M' && buf[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, 0, errors.Wrapf(core.ErrMalformedContainer, "invalid TIFF byte order % x", buf[:2])
	}
	if order.Uint16(buf[2:]) != 42 {
		return nil, 0, errors.Wrapf(core.ErrMalformedContainer, "invalid TIFF magic %d", order.Uint16(buf[2:]))
	}
	return order, order.Uint32(buf[4:]), nil
}

// PutHeader writes a TIFF header into the first eight bytes of buf.
func PutHeader(buf []byte, order binary.ByteOrder, ifdPos uint32) {
	if order == binary.BigEndian {
		buf[0], buf[1] = 'M', 'M'
	} else {
		buf[0], buf[1] = 'I', 'I'
	}
	order.PutUint16(buf[2:], 42)
	order.PutUint32(buf[4:], ifdPos)
}

type decoder struct {
	buf    []byte
	order  binary.ByteOrder
	strict bool
	seen   map[uint32]bool
	warn   *multierror.Error
}

func (d *decoder) warnf(format string, args ...interface{}) {
	d.warn = multierror.Append(d.warn, fmt.Errorf(format, args...))
}

// decodeTree reads the directory at pos and everything it links to.
func (d *decoder) decodeTree(pos uint32, kind IFDKind) (*IFD, error) {
	if d.seen[pos] {
		return nil, errors.Wrapf(core.ErrTruncatedIfd, "IFD cycle at offset %d", pos)
	}
	d.seen[pos] = true

	bufsize := uint64(len(d.buf))
	if uint64(pos)+2 > bufsize {
		return nil, errors.Wrapf(core.ErrTruncatedIfd, "%s IFD at %d: past end of segment (%d bytes)", kind, pos, bufsize)
	}
	order := d.order
	entries := order.Uint16(d.buf[pos:])
	tabsize := uint64(tableOverhead) + uint64(entries)*tableEntrySize
	if uint64(pos)+tabsize > bufsize {
		return nil, errors.Wrapf(core.ErrTruncatedIfd, "%s IFD at %d: %d entries extend past end of segment", kind, pos, entries)
	}

	ifd := NewIFD(kind)
	ifd.Entries = make([]Entry, 0, entries)
	p := pos + 2
	for i := uint16(0); i < entries; i, p = i+1, p+tableEntrySize {
		tag := order.Uint16(d.buf[p:])
		typ := Type(order.Uint16(d.buf[p+2:]))
		count := order.Uint32(d.buf[p+4:])
		field := d.buf[p+8 : p+12]

		if !typ.Known() {
			if d.strict {
				return nil, errors.Wrapf(core.ErrUnsupportedType, "tag 0x%04X in %s IFD has type code %d", tag, kind, uint16(typ))
			}
			d.warnf("tag 0x%04X in %s IFD: unknown type %d kept opaque", tag, kind, uint16(typ))
			o := Opaque{Code: typ, N: count}
			copy(o.Raw[:], field)
			ifd.Entries = append(ifd.Entries, Entry{Tag: tag, Value: o})
			continue
		}

		size := uint64(count) * uint64(typ.Size())
		raw := field[:0]
		if size > 4 {
			off := uint64(order.Uint32(field))
			if off+size > bufsize {
				return nil, errors.Wrapf(core.ErrTruncatedIfd,
					"tag 0x%04X in %s IFD: %d bytes at offset %d past end of segment", tag, kind, size, off)
			}
			raw = d.buf[off : off+size]
		} else {
			raw = field[:size]
		}
		ifd.Entries = append(ifd.Entries, Entry{Tag: tag, Value: decodeValue(typ, count, raw, order)})
	}
	next := order.Uint32(d.buf[p:])

	ifd.normalize(d)

	for _, e := range ifd.Entries {
		childKind, ok := subIFDPointers[kind][e.Tag]
		if !ok {
			continue
		}
		off, ok := pointerOffset(e.Value)
		if !ok || off == 0 {
			d.warnf("%s pointer in %s IFD has unusable value %s", childKind, kind, e.Value)
			continue
		}
		child, err := d.decodeTree(off, childKind)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s IFD", childKind)
		}
		if ifd.Sub == nil {
			ifd.Sub = make(map[uint16]*IFD)
		}
		ifd.Sub[e.Tag] = child
	}
	// Pointer tags that could not be followed would dangle after a rebuild.
	for tag := range subIFDPointers[kind] {
		if ifd.Sub[tag] == nil {
			ifd.Delete(tag)
		}
	}

	d.takeThumbnail(ifd)

	if next != 0 {
		if kind != IFD0 && kind != ThumbnailIFD {
			d.warnf("%s IFD has unexpected next pointer %d, ignored", kind, next)
			return ifd, nil
		}
		n, err := d.decodeTree(next, ThumbnailIFD)
		if err != nil {
			return nil, errors.WithMessage(err, "next IFD")
		}
		ifd.Next = n
	}
	return ifd, nil
}

// normalize sorts entries and drops duplicate tags, keeping the first.
func (ifd *IFD) normalize(d *decoder) {
	sort.SliceStable(ifd.Entries, func(i, j int) bool { return ifd.Entries[i].Tag < ifd.Entries[j].Tag })
	out := ifd.Entries[:0]
	for i, e := range ifd.Entries {
		if i > 0 && e.Tag == out[len(out)-1].Tag {
			d.warnf("duplicate tag 0x%04X in %s IFD dropped", e.Tag, ifd.Kind)
			continue
		}
		out = append(out, e)
	}
	ifd.Entries = out
}

// takeThumbnail moves the bytes referenced by JPEGInterchangeFormat into
// the node so the encoder can relocate them.
func (d *decoder) takeThumbnail(ifd *IFD) {
	offEntry, hasOff := ifd.Get(TagJPEGInterchangeFormat)
	lenEntry, hasLen := ifd.Get(TagJPEGInterchangeFormatLength)
	if !hasOff && !hasLen {
		return
	}
	off, okOff := pointerOffset(offEntry.Value)
	n, okLen := pointerOffset(lenEntry.Value)
	if !hasOff || !hasLen || !okOff || !okLen || uint64(off)+uint64(n) > uint64(len(d.buf)) {
		d.warnf("%s IFD: unusable thumbnail reference dropped", ifd.Kind)
		ifd.Delete(TagJPEGInterchangeFormat)
		ifd.Delete(TagJPEGInterchangeFormatLength)
		return
	}
	ifd.Thumbnail = make([]byte, n)
	copy(ifd.Thumbnail, d.buf[off:off+n])
}

// pointerOffset extracts a single offset from a LONG or SHORT value.
func pointerOffset(v Value) (uint32, bool) {
	switch x := v.(type) {
	case Longs:
		if len(x) == 1 {
			return x[0], true
		}
	case Shorts:
		if len(x) == 1 {
			return uint32(x[0]), true
		}
	}
	return 0, false
}
