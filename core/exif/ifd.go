package exif

import (
	"sort"
)

// IFDKind identifies a directory's role in the tree.
type IFDKind uint8

const (
	IFD0 IFDKind = iota
	ExifIFD
	GPSIFD
	InteropIFD
	ThumbnailIFD // IFD1 and any further directories chained from IFD0
)

var ifdNames = [...]string{
	IFD0:         "IFD0",
	ExifIFD:      "Exif",
	GPSIFD:       "GPS",
	InteropIFD:   "Interop",
	ThumbnailIFD: "IFD1",
}

func (k IFDKind) String() string {
	if int(k) < len(ifdNames) {
		return ifdNames[k]
	}
	return "IFD?"
}

// subIFDPointers lists the pointer tags followed from each directory kind.
var subIFDPointers = map[IFDKind]map[uint16]IFDKind{
	IFD0: {
		TagExifIFDPointer: ExifIFD,
		TagGPSIFDPointer:  GPSIFD,
	},
	ExifIFD: {
		TagInteropIFDPointer: InteropIFD,
	},
}

// pointerTag returns the tag in parent that links to a child of kind.
func pointerTag(parent, child IFDKind) (uint16, bool) {
	for tag, k := range subIFDPointers[parent] {
		if k == child {
			return tag, true
		}
	}
	return 0, false
}

// Entry is a single field of an IFD.
type Entry struct {
	Tag   uint16
	Value Value
}

// IFD is a node of the directory tree. It owns its entries, its sub-IFDs
// (keyed by the pointer tag that links them) and the next directory in the
// chain. Entries are kept unique and in ascending tag order.
type IFD struct {
	Kind    IFDKind
	Entries []Entry
	Sub     map[uint16]*IFD
	Next    *IFD

	// Thumbnail holds the JPEG bytes referenced by JPEGInterchangeFormat.
	Thumbnail []byte
}

// NewIFD returns an empty directory of the given kind.
func NewIFD(kind IFDKind) *IFD {
	return &IFD{Kind: kind}
}

func (d *IFD) index(tag uint16) (int, bool) {
	i := sort.Search(len(d.Entries), func(i int) bool { return d.Entries[i].Tag >= tag })
	return i, i < len(d.Entries) && d.Entries[i].Tag == tag
}

// Get returns the entry with the given tag.
func (d *IFD) Get(tag uint16) (Entry, bool) {
	if i, ok := d.index(tag); ok {
		return d.Entries[i], true
	}
	return Entry{}, false
}

// Set replaces the entry with the same tag, or inserts it in order. An
// entry with a nil Value makes Encode fail.
func (d *IFD) Set(e Entry) {
	i, ok := d.index(e.Tag)
	if ok {
		d.Entries[i] = e
		return
	}
	d.Entries = append(d.Entries, Entry{})
	copy(d.Entries[i+1:], d.Entries[i:])
	d.Entries[i] = e
}

// Delete removes the entry with the given tag and reports whether it existed.
func (d *IFD) Delete(tag uint16) bool {
	i, ok := d.index(tag)
	if !ok {
		return false
	}
	d.Entries = append(d.Entries[:i], d.Entries[i+1:]...)
	return true
}

// Child returns the sub-IFD of the given kind, or nil.
func (d *IFD) Child(kind IFDKind) *IFD {
	tag, ok := pointerTag(d.Kind, kind)
	if !ok {
		return nil
	}
	return d.Sub[tag]
}

// ensureChild returns the sub-IFD of the given kind, creating it and its
// pointer entry when absent. It returns nil if d cannot hold such a child.
func (d *IFD) ensureChild(kind IFDKind) *IFD {
	tag, ok := pointerTag(d.Kind, kind)
	if !ok {
		return nil
	}
	if c := d.Sub[tag]; c != nil {
		return c
	}
	if d.Sub == nil {
		d.Sub = make(map[uint16]*IFD)
	}
	c := NewIFD(kind)
	d.Sub[tag] = c
	// Placeholder; the encoder writes the real offset.
	d.Set(Entry{Tag: tag, Value: Longs{0}})
	return c
}

// removeChild drops the sub-IFD of the given kind and its pointer entry.
func (d *IFD) removeChild(kind IFDKind) bool {
	tag, ok := pointerTag(d.Kind, kind)
	if !ok || d.Sub[tag] == nil {
		return false
	}
	delete(d.Sub, tag)
	d.Delete(tag)
	return true
}

// subTags returns the pointer tags of the populated sub-IFDs in ascending order.
func (d *IFD) subTags() []uint16 {
	tags := make([]uint16, 0, len(d.Sub))
	for tag, c := range d.Sub {
		if c != nil {
			tags = append(tags, tag)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
