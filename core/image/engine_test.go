package image

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/pkg/errors"
	goexif "github.com/rwcarlsen/goexif/exif"

	"github.com/ankit-chaubey/exif-surgery/core"
	"github.com/ankit-chaubey/exif-surgery/core/exif"
)

var allFormats = []string{"jpeg", "png", "webp"}

func tiffWith(t *testing.T, order binary.ByteOrder, kv ...string) []byte {
	t.Helper()
	m := exif.New(order)
	for i := 0; i+1 < len(kv); i += 2 {
		if err := m.SetString(kv[i], kv[i+1]); err != nil {
			t.Fatal(err)
		}
	}
	b, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func locate(t *testing.T, format string, data []byte) *Location {
	t.Helper()
	id, err := core.ParseFormat(format)
	if err != nil {
		t.Fatal(err)
	}
	c, err := ContainerFor(id, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	loc, err := c.Locate(data)
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func without(b []byte, r Range) []byte {
	return append(append([]byte(nil), b[:r.Start]...), b[r.End:]...)
}

// maskRIFF blanks the RIFF size and VP8X flags, which change whenever a
// chunk is added or removed.
func maskRIFF(format string, b []byte) []byte {
	if format != "webp" {
		return b
	}
	b = append([]byte(nil), b...)
	copy(b[4:8], []byte{0, 0, 0, 0})
	if string(b[12:16]) == "VP8X" {
		b[20] = 0
	}
	return b
}

func readTag(t *testing.T, data []byte, format, name string) string {
	t.Helper()
	id, _ := core.ParseFormat(format)
	m, err := NewEngine(DefaultOptions()).Read(data, id)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatalf("%s: no exif segment", format)
	}
	v, ok := m.Tag(name)
	if !ok {
		t.Fatalf("%s: tag %s missing", format, name)
	}
	return v.String()
}

func TestMinimalJPEGScenario(t *testing.T) {
	in := minimalJPEG()
	out, err := EmbedTimestamp(in, testTimestamp, "jpeg")
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != 0xFF || out[1] != 0xD8 {
		t.Fatal("SOI moved")
	}
	if out[2] != 0xFF || out[3] != 0xE1 {
		t.Fatalf("APP1 not directly after SOI: % x", out[2:4])
	}
	end := 4 + int(binary.BigEndian.Uint16(out[4:]))
	if !bytes.Equal(out[end:], in[2:]) {
		t.Fatal("bytes after APP1 differ from the input after SOI")
	}

	segs, err := scanJPEG(out)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, s := range segs {
		if s.marker == markerAPP1 {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("%d APP1 segments, want 1", n)
	}

	x, err := goexif.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	tag, err := x.Get(goexif.DateTimeOriginal)
	if err != nil {
		t.Fatal(err)
	}
	if s, err := tag.StringVal(); err != nil || s != testTimestamp {
		t.Fatalf("goexif DateTimeOriginal = %q, %v", s, err)
	}
}

func TestEmbedInsertPreservesBytes(t *testing.T) {
	inputs := map[string][]byte{
		"jpeg": minimalJPEG(),
		"png":  minimalPNG(),
		"webp": extendedWebP(),
	}
	for _, f := range allFormats {
		in := inputs[f]
		orig := append([]byte(nil), in...)
		out, err := EmbedTimestamp(in, testTimestamp, f)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if !bytes.Equal(in, orig) {
			t.Fatalf("%s: input was modified", f)
		}
		loc := locate(t, f, out)
		if loc == nil {
			t.Fatalf("%s: no segment after embed", f)
		}
		if !bytes.Equal(maskRIFF(f, without(out, loc.Segment)), maskRIFF(f, in)) {
			t.Errorf("%s: bytes outside the inserted segment changed", f)
		}
		if got := readTag(t, out, f, "DateTimeOriginal"); got != testTimestamp {
			t.Errorf("%s: DateTimeOriginal = %q", f, got)
		}
	}
}

func TestEmbedReplacePreservesBytes(t *testing.T) {
	for _, f := range allFormats {
		in := containerWith(f, tiffWith(t, binary.LittleEndian, "Make", "ACME", "Orientation", "6"))
		out, err := EmbedTimestamp(in, testTimestamp, f)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		locIn, locOut := locate(t, f, in), locate(t, f, out)
		if locIn.Segment.Start != locOut.Segment.Start {
			t.Errorf("%s: segment moved from %d to %d", f, locIn.Segment.Start, locOut.Segment.Start)
		}
		if !bytes.Equal(maskRIFF(f, without(in, locIn.Segment)), maskRIFF(f, without(out, locOut.Segment))) {
			t.Errorf("%s: bytes outside the replaced segment changed", f)
		}
		if got := readTag(t, out, f, "Make"); got != "ACME" {
			t.Errorf("%s: Make = %q, want unrelated tag kept", f, got)
		}
		if got := readTag(t, out, f, "Orientation"); got != "6" {
			t.Errorf("%s: Orientation = %q", f, got)
		}
	}
}

func TestEmbedIdempotent(t *testing.T) {
	inputs := map[string][][]byte{
		"jpeg": {minimalJPEG(), containerWith("jpeg", tiffWith(t, binary.BigEndian, "Model", "X1"))},
		"png":  {minimalPNG()},
		"webp": {simpleWebP(), lossyWebP(), extendedWebP()},
	}
	for _, f := range allFormats {
		for i, in := range inputs[f] {
			once, err := EmbedTimestamp(in, testTimestamp, f)
			if err != nil {
				t.Fatalf("%s #%d: %v", f, i, err)
			}
			twice, err := EmbedTimestamp(once, testTimestamp, f)
			if err != nil {
				t.Fatalf("%s #%d: %v", f, i, err)
			}
			if !bytes.Equal(once, twice) {
				t.Errorf("%s #%d: second embed changed the output", f, i)
			}
		}
	}
}

func TestBigEndianPreserved(t *testing.T) {
	for _, f := range allFormats {
		in := containerWith(f, tiffWith(t, binary.BigEndian, "Make", "ACME"))
		out, err := EmbedTimestamp(in, testTimestamp, f)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		loc := locate(t, f, out)
		if got := string(loc.TIFF(out)[:2]); got != "MM" {
			t.Errorf("%s: byte order %q, want MM", f, got)
		}
		if got := readTag(t, out, f, "Make"); got != "ACME" {
			t.Errorf("%s: Make = %q", f, got)
		}
	}
}

func TestNewSegmentByteOrder(t *testing.T) {
	opts := DefaultOptions()
	out, err := NewEngine(opts).Embed(minimalPNG(), testTimestamp, core.FmtPNG)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(locate(t, "png", out).TIFF(out)[:2]); got != "II" {
		t.Fatalf("default order %q, want II", got)
	}

	opts.ByteOrder = binary.BigEndian
	out, err = NewEngine(opts).Embed(minimalPNG(), testTimestamp, core.FmtPNG)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(locate(t, "png", out).TIFF(out)[:2]); got != "MM" {
		t.Fatalf("configured order %q, want MM", got)
	}
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		ts     string
		format string
		want   error
	}{
		{"unknown format", minimalJPEG(), testTimestamp, "gif", core.ErrInvalidFormat},
		{"empty format", minimalJPEG(), testTimestamp, "", core.ErrInvalidFormat},
		{"png without IHDR", append([]byte(nil), pngSignature...), testTimestamp, "png", core.ErrMalformedContainer},
		{"png truncated chunk", minimalPNG()[:20], testTimestamp, "png", core.ErrMalformedContainer},
		{"png first chunk IDAT", append(append([]byte(nil), pngSignature...), pngChunkBytes("IDAT", []byte{1})...), testTimestamp, "png", core.ErrMalformedContainer},
		{"jpeg without SOI", []byte{0x00, 0x01, 0x02}, testTimestamp, "jpeg", core.ErrMalformedContainer},
		{"jpeg segment overrun", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x10, 0x00, 0x00}, testTimestamp, "jpeg", core.ErrMalformedContainer},
		{"webp bad magic", []byte("RIFF\x04\x00\x00\x00WAVE"), testTimestamp, "webp", core.ErrMalformedContainer},
		{"webp size overrun", []byte("RIFF\xff\x00\x00\x00WEBP"), testTimestamp, "webp", core.ErrMalformedContainer},
		{"bad timestamp", minimalJPEG(), "2024-01-15 10:30:00", "jpeg", core.ErrTypeMismatch},
		{"short timestamp", minimalPNG(), "2024:01:15", "png", core.ErrTypeMismatch},
		{"truncated ifd", containerWith("jpeg", []byte("II*\x00\x08\x00\x00\x00\x05")), testTimestamp, "jpeg", core.ErrTruncatedIfd},
	}
	for _, tt := range tests {
		out, err := EmbedTimestamp(tt.data, tt.ts, tt.format)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
		if out != nil {
			t.Errorf("%s: got %d bytes of output on error", tt.name, len(out))
		}
	}
}

func TestFormatStringsCaseInsensitive(t *testing.T) {
	for _, f := range []string{"JPEG", "jpg", "Jpg"} {
		if _, err := EmbedTimestamp(minimalJPEG(), testTimestamp, f); err != nil {
			t.Errorf("%q: %v", f, err)
		}
	}
}

func TestJPEGSegmentTooLarge(t *testing.T) {
	e := NewEngine(DefaultOptions())
	big := exif.Undefined(make([]byte, MaxJPEGPayload))
	out, err := e.SetTags(minimalJPEG(), core.FmtJPEG, map[string]exif.Value{"UserComment": big})
	if !errors.Is(err, core.ErrSegmentTooLarge) {
		t.Fatalf("err = %v, want ErrSegmentTooLarge", err)
	}
	if out != nil {
		t.Fatal("output returned on error")
	}

	// The same segment fits in a PNG chunk.
	if _, err := e.SetTags(minimalPNG(), core.FmtPNG, map[string]exif.Value{"UserComment": big}); err != nil {
		t.Fatal(err)
	}
}

func TestSetTagsAllOrNothing(t *testing.T) {
	e := NewEngine(DefaultOptions())
	out, err := e.SetTags(minimalJPEG(), core.FmtJPEG, map[string]exif.Value{
		"Make":        exif.ASCIIText("ACME"),
		"Orientation": exif.Longs{6},
	})
	if !errors.Is(err, core.ErrTypeMismatch) || out != nil {
		t.Fatalf("got %d bytes, err %v", len(out), err)
	}
	_, err = e.SetTags(minimalJPEG(), core.FmtJPEG, map[string]exif.Value{"NoSuchTag": exif.Shorts{1}})
	if !errors.Is(err, core.ErrUnknownTag) {
		t.Fatalf("err = %v, want ErrUnknownTag", err)
	}
}

func TestDuplicateSegmentsRemoved(t *testing.T) {
	for _, f := range allFormats {
		in := containerWith(f,
			tiffWith(t, binary.LittleEndian, "Make", "first"),
			tiffWith(t, binary.LittleEndian, "Make", "second"),
		)
		loc := locate(t, f, in)
		if len(loc.Duplicates) != 1 {
			t.Fatalf("%s: %d duplicates, want 1", f, len(loc.Duplicates))
		}
		out, err := EmbedTimestamp(in, testTimestamp, f)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		loc = locate(t, f, out)
		if len(loc.Duplicates) != 0 {
			t.Errorf("%s: duplicates left after write", f)
		}
		if got := readTag(t, out, f, "Make"); got != "first" {
			t.Errorf("%s: Make = %q, want the first segment to win", f, got)
		}
	}
}

func TestStripRestoresOriginal(t *testing.T) {
	inputs := map[string][]byte{
		"jpeg": minimalJPEG(),
		"png":  minimalPNG(),
		"webp": extendedWebP(),
	}
	e := NewEngine(DefaultOptions())
	for _, f := range allFormats {
		id, _ := core.ParseFormat(f)
		in := inputs[f]
		stamped, err := e.Embed(in, testTimestamp, id)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		stripped, err := e.Strip(stamped, id)
		if err != nil {
			t.Fatalf("%s: %v", f, err)
		}
		if !bytes.Equal(stripped, in) {
			t.Errorf("%s: strip did not restore the original bytes", f)
		}
		again, err := e.Strip(stripped, id)
		if err != nil || !bytes.Equal(again, in) {
			t.Errorf("%s: stripping a clean file changed it (%v)", f, err)
		}
	}
}

func TestKeepJFIFFirst(t *testing.T) {
	opts := DefaultOptions()
	opts.KeepJFIFFirst = true
	in := minimalJPEG()
	out, err := NewEngine(opts).Embed(in, testTimestamp, core.FmtJPEG)
	if err != nil {
		t.Fatal(err)
	}
	app0End := 2 + 2 + 16
	if !bytes.Equal(out[:app0End], in[:app0End]) {
		t.Fatal("APP0 is no longer first")
	}
	if out[app0End] != 0xFF || out[app0End+1] != markerAPP1 {
		t.Fatalf("APP1 not after APP0: % x", out[app0End:app0End+2])
	}
}

func TestStrictDecode(t *testing.T) {
	// IFD0 with one entry of type 99.
	tiff := []byte{'I', 'I', 42, 0, 8, 0, 0, 0, 1, 0, 0x0F, 0x01, 99, 0, 1, 0, 0, 0, 1, 2, 3, 4, 0, 0, 0, 0}
	in := containerWith("png", tiff)

	if _, err := EmbedTimestamp(in, testTimestamp, "png"); err != nil {
		t.Fatalf("tolerant embed: %v", err)
	}
	opts := DefaultOptions()
	opts.Strict = true
	_, err := NewEngine(opts).Embed(in, testTimestamp, core.FmtPNG)
	if !errors.Is(err, core.ErrUnsupportedType) {
		t.Fatalf("strict embed err = %v, want ErrUnsupportedType", err)
	}
}

func TestReadWithoutSegment(t *testing.T) {
	m, err := NewEngine(DefaultOptions()).Read(minimalPNG(), core.FmtPNG)
	if err != nil || m != nil {
		t.Fatalf("Read = %v, %v; want nil, nil", m, err)
	}
}
