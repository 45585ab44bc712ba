// Package image performs EXIF surgery on JPEG, PNG and WebP containers held
// in memory: locate the EXIF segment, rewrite it, and splice it back while
// leaving every other byte untouched.
package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pkg/errors"
	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/ankit-chaubey/exif-surgery/core"
	"github.com/ankit-chaubey/exif-surgery/core/exif"
)

// ──────────────────────────────────────────────────────────────────────────────
// Handler
// ──────────────────────────────────────────────────────────────────────────────

// Handler implements core.Handler for one image format.
type Handler struct {
	format core.FormatID
	engine *Engine
}

var _ core.Handler = (*Handler)(nil)

// New returns a Handler for the given format with default options.
func New(format core.FormatID) *Handler {
	return NewWithOptions(format, DefaultOptions())
}

// NewWithOptions returns a Handler whose engine uses opts.
func NewWithOptions(format core.FormatID, opts Options) *Handler {
	return &Handler{format: format, engine: NewEngine(opts)}
}

func (h *Handler) Info() core.FormatInfo {
	return formatInfo[h.format]
}

var formatInfo = map[core.FormatID]core.FormatInfo{
	core.FmtJPEG: {
		Name:       "JPEG",
		Extensions: []string{".jpg", ".jpeg", ".jpe"},
		MIMETypes:  []string{"image/jpeg"},
		Envelope:   `APP1 marker segment, "Exif\0\0" + TIFF`,
		Notes:      "Segment payload is limited to 65533 bytes.",
	},
	core.FmtPNG: {
		Name:       "PNG",
		Extensions: []string{".png"},
		MIMETypes:  []string{"image/png"},
		Envelope:   "eXIf chunk after IHDR, raw TIFF",
		Notes:      "Chunk CRC is recomputed on write.",
	},
	core.FmtWebP: {
		Name:       "WebP",
		Extensions: []string{".webp"},
		MIMETypes:  []string{"image/webp"},
		Envelope:   "EXIF RIFF chunk, raw TIFF",
		Notes:      "Simple-format files gain a VP8X header unless promotion is disabled.",
	},
}

// ──────────────────────────────────────────────────────────────────────────────
// View
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) View(data []byte) (*core.Metadata, error) {
	m := &core.Metadata{Format: h.format.String()}
	model, err := h.engine.Read(data, h.format)
	if err != nil {
		return nil, err
	}
	if model == nil {
		return m, nil
	}
	if model.ByteOrder() == binary.BigEndian {
		m.ByteOrder = "MM"
	} else {
		m.ByteOrder = "II"
	}

	tiffData, err := model.Encode()
	if err != nil {
		return nil, err
	}
	if x, err := goexif.Decode(bytes.NewReader(tiffData)); err == nil {
		w := &exifWalker{m: m}
		if err := x.Walk(w); err == nil {
			sortFields(m.Fields)
			return m, nil
		}
		m.Fields = nil
	}

	// goexif rejects some layouts it did not write itself; fall back to
	// the model's own rendering.
	err = model.Walk(func(kind exif.IFDKind, e exif.Entry) error {
		f := core.MetaField{Key: fmt.Sprintf("0x%04X", e.Tag), Value: e.Value.String(), Category: kind.String()}
		if ti, ok := exif.LookupCode(kind, e.Tag); ok {
			f.Key = ti.Name
			f.Editable = true
		}
		f.Raw = fmt.Sprintf("%s[%d]", e.Value.Type().Name(), e.Value.Count())
		m.Fields = append(m.Fields, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

type exifWalker struct {
	m *core.Metadata
}

// Directory pointers are structure, not fields.
var pointerFields = map[goexif.FieldName]bool{
	goexif.ExifIFDPointer:             true,
	goexif.GPSInfoIFDPointer:          true,
	goexif.InteroperabilityIFDPointer: true,
}

func (w *exifWalker) Walk(name goexif.FieldName, tag *tiff.Tag) error {
	if pointerFields[name] {
		return nil
	}
	val := tag.String()
	// Remove surrounding quotes from string values
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	f := core.MetaField{
		Key:      string(name),
		Value:    val,
		Category: "EXIF",
		Raw:      fmt.Sprintf("type %d count %d", tag.Type, tag.Count),
	}
	if ti, err := exif.Lookup(string(name)); err == nil {
		f.Category = ti.IFD.String()
		f.Editable = true
	}
	w.m.Fields = append(w.m.Fields, f)
	return nil
}

var ifdOrder = map[string]int{"IFD0": 0, "Exif": 1, "Interop": 2, "GPS": 3, "IFD1": 4, "EXIF": 5}

func sortFields(fields []core.MetaField) {
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := ifdOrder[fields[i].Category], ifdOrder[fields[j].Category]
		if a != b {
			return a < b
		}
		return fields[i].Key < fields[j].Key
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Edit
// ──────────────────────────────────────────────────────────────────────────────

// Edit applies opts.Set (parsed through the tag dictionary) and opts.Delete
// in one rewrite. Keys are applied in sorted order so the first failure is
// deterministic.
func (h *Handler) Edit(data []byte, opts core.EditOptions) ([]byte, error) {
	if len(opts.Set) == 0 && len(opts.Delete) == 0 {
		return nil, errors.New("nothing to edit: no fields set or deleted")
	}
	keys := make([]string, 0, len(opts.Set))
	for k := range opts.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return h.engine.Edit(data, h.format, func(m *exif.Metadata) error {
		for _, k := range keys {
			if err := m.SetString(k, opts.Set[k]); err != nil {
				return errors.WithMessagef(err, "set %s=%q", k, opts.Set[k])
			}
		}
		for _, k := range opts.Delete {
			if err := m.RemoveTag(k); err != nil {
				return errors.WithMessagef(err, "delete %s", k)
			}
		}
		return nil
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Strip
// ──────────────────────────────────────────────────────────────────────────────

// Strip removes the whole EXIF segment, or only the GPS directory when
// opts.StripGPS is set.
func (h *Handler) Strip(data []byte, opts core.StripOptions) ([]byte, error) {
	if !opts.StripGPS {
		return h.engine.Strip(data, h.format)
	}
	model, err := h.engine.Read(data, h.format)
	if err != nil {
		return nil, err
	}
	if model == nil || model.IFD(exif.GPSIFD) == nil {
		return append([]byte(nil), data...), nil
	}
	return h.engine.Edit(data, h.format, func(m *exif.Metadata) error {
		m.RemoveIFD(exif.GPSIFD)
		return nil
	})
}
