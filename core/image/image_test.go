package image

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
	"github.com/ankit-chaubey/exif-surgery/core/exif"
)

func field(m *core.Metadata, key string) (core.MetaField, bool) {
	for _, f := range m.Fields {
		if f.Key == key {
			return f, true
		}
	}
	return core.MetaField{}, false
}

func TestHandlerViewEmpty(t *testing.T) {
	m, err := New(core.FmtPNG).View(minimalPNG())
	if err != nil {
		t.Fatal(err)
	}
	if m.Format != "PNG" || m.ByteOrder != "" || len(m.Fields) != 0 {
		t.Fatalf("View = %+v", m)
	}
}

func TestHandlerEditAndView(t *testing.T) {
	h := New(core.FmtJPEG)
	out, err := h.Edit(minimalJPEG(), core.EditOptions{Set: map[string]string{
		"Make":             "ACME",
		"DateTimeOriginal": testTimestamp,
		"GPSLatitudeRef":   "N",
	}})
	if err != nil {
		t.Fatal(err)
	}
	m, err := h.View(out)
	if err != nil {
		t.Fatal(err)
	}
	if m.ByteOrder != "II" {
		t.Errorf("ByteOrder = %q", m.ByteOrder)
	}
	tests := []struct{ key, value, ifd string }{
		{"Make", "ACME", "IFD0"},
		{"DateTimeOriginal", testTimestamp, "Exif"},
		{"GPSLatitudeRef", "N", "GPS"},
	}
	for _, tt := range tests {
		f, ok := field(m, tt.key)
		if !ok {
			t.Errorf("%s missing from view", tt.key)
			continue
		}
		if f.Value != tt.value || f.Category != tt.ifd || !f.Editable {
			t.Errorf("%s = %+v", tt.key, f)
		}
	}
	if _, ok := field(m, "ExifIFDPointer"); ok {
		t.Error("pointer tag listed as a field")
	}
	// Fields come grouped by directory.
	if m.Fields[0].Category != "IFD0" || m.Fields[len(m.Fields)-1].Category != "GPS" {
		t.Errorf("fields not grouped: first %s, last %s", m.Fields[0].Category, m.Fields[len(m.Fields)-1].Category)
	}
}

func TestHandlerEditDelete(t *testing.T) {
	h := New(core.FmtPNG)
	in := pngWithEXIF(tiffWith(t, binary.LittleEndian, "Make", "ACME", "Model", "X1"))
	out, err := h.Edit(in, core.EditOptions{Delete: []string{"Model"}})
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewEngine(DefaultOptions()).Read(out, core.FmtPNG)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m.Tag("Model"); ok {
		t.Error("Model still present")
	}
	if _, ok := m.Tag("Make"); !ok {
		t.Error("Make lost")
	}
}

func TestHandlerEditErrors(t *testing.T) {
	h := New(core.FmtJPEG)
	tests := []struct {
		opts core.EditOptions
		want error
	}{
		{core.EditOptions{Set: map[string]string{"Bogus": "1"}}, core.ErrUnknownTag},
		{core.EditOptions{Set: map[string]string{"Orientation": "sideways"}}, core.ErrTypeMismatch},
		{core.EditOptions{Set: map[string]string{"DateTime": "yesterday"}}, core.ErrTypeMismatch},
		{core.EditOptions{Delete: []string{"Bogus"}}, core.ErrUnknownTag},
	}
	for _, tt := range tests {
		out, err := h.Edit(minimalJPEG(), tt.opts)
		if !errors.Is(err, tt.want) || out != nil {
			t.Errorf("Edit(%+v) = %d bytes, %v; want %v", tt.opts, len(out), err, tt.want)
		}
	}
	if _, err := h.Edit(minimalJPEG(), core.EditOptions{}); err == nil {
		t.Error("empty edit accepted")
	}
}

func TestHandlerStripGPS(t *testing.T) {
	h := New(core.FmtWebP)
	stamped, err := h.Edit(extendedWebP(), core.EditOptions{Set: map[string]string{
		"DateTimeOriginal": testTimestamp,
		"GPSLatitudeRef":   "S",
		"GPSLatitude":      "33/1 51/1 0/1",
	}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := h.Strip(stamped, core.StripOptions{StripGPS: true})
	if err != nil {
		t.Fatal(err)
	}
	m, err := NewEngine(DefaultOptions()).Read(out, core.FmtWebP)
	if err != nil {
		t.Fatal(err)
	}
	if m.IFD(exif.GPSIFD) != nil {
		t.Fatal("GPS IFD survived")
	}
	if v, ok := m.Tag("DateTimeOriginal"); !ok || v.String() != testTimestamp {
		t.Fatalf("DateTimeOriginal = %v, %v", v, ok)
	}

	// No GPS: the file comes back unchanged.
	again, err := h.Strip(out, core.StripOptions{StripGPS: true})
	if err != nil || !bytes.Equal(again, out) {
		t.Fatalf("second GPS strip changed the file (%v)", err)
	}
}

func TestHandlerStripAll(t *testing.T) {
	h := New(core.FmtJPEG)
	in := containerWith("jpeg", tiffWith(t, binary.LittleEndian, "Make", "ACME"))
	out, err := h.Strip(in, core.StripOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, minimalJPEG()) {
		t.Fatal("strip left bytes behind")
	}
}

func TestHandlerInfo(t *testing.T) {
	for _, id := range []core.FormatID{core.FmtJPEG, core.FmtPNG, core.FmtWebP} {
		info := New(id).Info()
		if info.Name != id.String() || len(info.Extensions) == 0 || info.Envelope == "" {
			t.Errorf("Info(%s) = %+v", id, info)
		}
	}
}
