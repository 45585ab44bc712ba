package exif

import (
	"encoding/binary"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

// Metadata is an editable EXIF directory tree. A value is owned by a single
// edit; it is not safe for concurrent mutation.
type Metadata struct {
	order    binary.ByteOrder
	root     *IFD
	warnings *multierror.Error
}

// New returns a model holding a single empty IFD0. A nil order selects
// little-endian.
func New(order binary.ByteOrder) *Metadata {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Metadata{order: order, root: NewIFD(IFD0)}
}

// Decode builds a model from a TIFF stream (the payload of an EXIF segment,
// without any "Exif\0\0" prefix).
func Decode(tiff []byte, opts DecodeOptions) (*Metadata, error) {
	order, pos, err := GetHeader(tiff)
	if err != nil {
		return nil, err
	}
	if pos < HeaderSize {
		return nil, errors.Wrapf(core.ErrTruncatedIfd, "IFD0 offset %d overlaps TIFF header", pos)
	}
	d := &decoder{
		buf:    tiff,
		order:  order,
		strict: opts.Strict,
		seen:   make(map[uint32]bool),
	}
	root, err := d.decodeTree(pos, IFD0)
	if err != nil {
		return nil, err
	}
	return &Metadata{order: order, root: root, warnings: d.warn}, nil
}

// Encode serializes the model as a TIFF stream in its own byte order.
func (m *Metadata) Encode() ([]byte, error) {
	return encodeTree(m.root, m.order)
}

// ByteOrder returns the byte order the model encodes with.
func (m *Metadata) ByteOrder() binary.ByteOrder { return m.order }

// Root returns IFD0.
func (m *Metadata) Root() *IFD { return m.root }

// Warnings returns the non-fatal problems found while decoding, or nil.
func (m *Metadata) Warnings() error {
	return m.warnings.ErrorOrNil()
}

// IFD returns the directory of the given kind, or nil when absent.
func (m *Metadata) IFD(kind IFDKind) *IFD {
	switch kind {
	case IFD0:
		return m.root
	case ExifIFD, GPSIFD:
		return m.root.Child(kind)
	case InteropIFD:
		if exif := m.root.Child(ExifIFD); exif != nil {
			return exif.Child(InteropIFD)
		}
	case ThumbnailIFD:
		return m.root.Next
	}
	return nil
}

func (m *Metadata) ensureIFD(kind IFDKind) *IFD {
	switch kind {
	case IFD0:
		return m.root
	case ExifIFD, GPSIFD:
		return m.root.ensureChild(kind)
	case InteropIFD:
		return m.root.ensureChild(ExifIFD).ensureChild(InteropIFD)
	case ThumbnailIFD:
		if m.root.Next == nil {
			m.root.Next = NewIFD(ThumbnailIFD)
		}
		return m.root.Next
	}
	return nil
}

// SetTag validates v against the tag dictionary and stores it in the tag's
// directory, creating that directory when needed. An existing entry with
// the same code is replaced.
func (m *Metadata) SetTag(name string, v Value) error {
	ti, err := Lookup(name)
	if err != nil {
		return err
	}
	if err := ti.Validate(v); err != nil {
		return err
	}
	m.ensureIFD(ti.IFD).Set(Entry{Tag: ti.Code, Value: v})
	return nil
}

// SetString parses s according to the tag's declared type and sets it.
func (m *Metadata) SetString(name, s string) error {
	ti, err := Lookup(name)
	if err != nil {
		return err
	}
	v, err := ti.Parse(s)
	if err != nil {
		return err
	}
	return m.SetTag(name, v)
}

// Tag returns the value stored for a named tag.
func (m *Metadata) Tag(name string) (Value, bool) {
	ti, err := Lookup(name)
	if err != nil {
		return nil, false
	}
	ifd := m.IFD(ti.IFD)
	if ifd == nil {
		return nil, false
	}
	e, ok := ifd.Get(ti.Code)
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// RemoveTag deletes a named tag. Removing an absent tag is not an error.
func (m *Metadata) RemoveTag(name string) error {
	ti, err := Lookup(name)
	if err != nil {
		return err
	}
	if ifd := m.IFD(ti.IFD); ifd != nil {
		ifd.Delete(ti.Code)
	}
	return nil
}

// RemoveIFD drops a sub-IFD (or the thumbnail chain) with all its entries.
func (m *Metadata) RemoveIFD(kind IFDKind) bool {
	switch kind {
	case ExifIFD, GPSIFD:
		return m.root.removeChild(kind)
	case InteropIFD:
		if exif := m.root.Child(ExifIFD); exif != nil {
			return exif.removeChild(InteropIFD)
		}
	case ThumbnailIFD:
		had := m.root.Next != nil
		m.root.Next = nil
		return had
	}
	return false
}

// Walk calls fn for every entry of every directory, parents before
// children, sub-IFDs in pointer tag order, then the next chain. Pointer
// entries are skipped.
func (m *Metadata) Walk(fn func(kind IFDKind, e Entry) error) error {
	return walk(m.root, fn)
}

func walk(ifd *IFD, fn func(IFDKind, Entry) error) error {
	for _, e := range ifd.Entries {
		if ifd.Sub[e.Tag] != nil {
			continue
		}
		if err := fn(ifd.Kind, e); err != nil {
			return err
		}
	}
	for _, tag := range ifd.subTags() {
		if err := walk(ifd.Sub[tag], fn); err != nil {
			return err
		}
	}
	if ifd.Next != nil {
		return walk(ifd.Next, fn)
	}
	return nil
}
