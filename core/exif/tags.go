package exif

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ankit-chaubey/exif-surgery/core"
)

// Pointer and thumbnail tags handled structurally by the codec.
const (
	TagExifIFDPointer              uint16 = 0x8769
	TagGPSIFDPointer               uint16 = 0x8825
	TagInteropIFDPointer           uint16 = 0xA005
	TagJPEGInterchangeFormat       uint16 = 0x0201
	TagJPEGInterchangeFormatLength uint16 = 0x0202
)

// TagInfo describes a settable tag.
type TagInfo struct {
	Name string
	Code uint16
	Type Type
	IFD  IFDKind
	// Count is the required value count; 0 means variable length.
	Count uint32

	check func(Value) error
	parse func(string) (Value, error)
}

// Validate checks v against the declared type, count, and layout of the tag.
func (ti TagInfo) Validate(v Value) error {
	if v == nil {
		return errors.Wrapf(core.ErrTypeMismatch, "%s: nil value", ti.Name)
	}
	if v.Type() != ti.Type {
		return errors.Wrapf(core.ErrTypeMismatch, "%s: want %s, got %s", ti.Name, ti.Type.Name(), v.Type().Name())
	}
	if ti.Count != 0 && v.Count() != ti.Count {
		return errors.Wrapf(core.ErrTypeMismatch, "%s: want count %d, got %d", ti.Name, ti.Count, v.Count())
	}
	if ti.check != nil {
		return ti.check(v)
	}
	return nil
}

// Parse converts text into a value of the tag's declared type. The result is
// not validated; pass it through SetTag for that.
func (ti TagInfo) Parse(s string) (Value, error) {
	if ti.parse != nil {
		return ti.parse(s)
	}
	v, err := parseText(ti.Type, s)
	if err != nil {
		return nil, errors.Wrapf(core.ErrTypeMismatch, "%s: %v", ti.Name, err)
	}
	return v, nil
}

var tagTable = []TagInfo{
	// IFD0
	{Name: "ImageDescription", Code: 0x010E, Type: ASCII, IFD: IFD0},
	{Name: "Make", Code: 0x010F, Type: ASCII, IFD: IFD0},
	{Name: "Model", Code: 0x0110, Type: ASCII, IFD: IFD0},
	{Name: "Orientation", Code: 0x0112, Type: SHORT, IFD: IFD0, Count: 1},
	{Name: "XResolution", Code: 0x011A, Type: RATIONAL, IFD: IFD0, Count: 1},
	{Name: "YResolution", Code: 0x011B, Type: RATIONAL, IFD: IFD0, Count: 1},
	{Name: "ResolutionUnit", Code: 0x0128, Type: SHORT, IFD: IFD0, Count: 1},
	{Name: "Software", Code: 0x0131, Type: ASCII, IFD: IFD0},
	{Name: "DateTime", Code: 0x0132, Type: ASCII, IFD: IFD0, Count: 20, check: checkDateTime},
	{Name: "Artist", Code: 0x013B, Type: ASCII, IFD: IFD0},
	{Name: "HostComputer", Code: 0x013C, Type: ASCII, IFD: IFD0},
	{Name: "YCbCrPositioning", Code: 0x0213, Type: SHORT, IFD: IFD0, Count: 1},
	{Name: "Copyright", Code: 0x8298, Type: ASCII, IFD: IFD0},

	// Exif sub-IFD
	{Name: "ExposureTime", Code: 0x829A, Type: RATIONAL, IFD: ExifIFD, Count: 1},
	{Name: "FNumber", Code: 0x829D, Type: RATIONAL, IFD: ExifIFD, Count: 1},
	{Name: "ExposureProgram", Code: 0x8822, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "ISOSpeedRatings", Code: 0x8827, Type: SHORT, IFD: ExifIFD},
	{Name: "ExifVersion", Code: 0x9000, Type: UNDEFINED, IFD: ExifIFD, Count: 4},
	{Name: "DateTimeOriginal", Code: 0x9003, Type: ASCII, IFD: ExifIFD, Count: 20, check: checkDateTime},
	{Name: "DateTimeDigitized", Code: 0x9004, Type: ASCII, IFD: ExifIFD, Count: 20, check: checkDateTime},
	{Name: "OffsetTime", Code: 0x9010, Type: ASCII, IFD: ExifIFD, Count: 7},
	{Name: "OffsetTimeOriginal", Code: 0x9011, Type: ASCII, IFD: ExifIFD, Count: 7},
	{Name: "OffsetTimeDigitized", Code: 0x9012, Type: ASCII, IFD: ExifIFD, Count: 7},
	{Name: "ComponentsConfiguration", Code: 0x9101, Type: UNDEFINED, IFD: ExifIFD, Count: 4},
	{Name: "ShutterSpeedValue", Code: 0x9201, Type: SRATIONAL, IFD: ExifIFD, Count: 1},
	{Name: "ApertureValue", Code: 0x9202, Type: RATIONAL, IFD: ExifIFD, Count: 1},
	{Name: "ExposureBiasValue", Code: 0x9204, Type: SRATIONAL, IFD: ExifIFD, Count: 1},
	{Name: "MaxApertureValue", Code: 0x9205, Type: RATIONAL, IFD: ExifIFD, Count: 1},
	{Name: "MeteringMode", Code: 0x9207, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "Flash", Code: 0x9209, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "FocalLength", Code: 0x920A, Type: RATIONAL, IFD: ExifIFD, Count: 1},
	{Name: "UserComment", Code: 0x9286, Type: UNDEFINED, IFD: ExifIFD, parse: parseUserComment},
	{Name: "SubSecTime", Code: 0x9290, Type: ASCII, IFD: ExifIFD},
	{Name: "SubSecTimeOriginal", Code: 0x9291, Type: ASCII, IFD: ExifIFD},
	{Name: "SubSecTimeDigitized", Code: 0x9292, Type: ASCII, IFD: ExifIFD},
	{Name: "FlashpixVersion", Code: 0xA000, Type: UNDEFINED, IFD: ExifIFD, Count: 4},
	{Name: "ColorSpace", Code: 0xA001, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "PixelXDimension", Code: 0xA002, Type: LONG, IFD: ExifIFD, Count: 1},
	{Name: "PixelYDimension", Code: 0xA003, Type: LONG, IFD: ExifIFD, Count: 1},
	{Name: "ExposureMode", Code: 0xA402, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "WhiteBalance", Code: 0xA403, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "FocalLengthIn35mmFilm", Code: 0xA405, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "SceneCaptureType", Code: 0xA406, Type: SHORT, IFD: ExifIFD, Count: 1},
	{Name: "ImageUniqueID", Code: 0xA420, Type: ASCII, IFD: ExifIFD, Count: 33},
	{Name: "CameraOwnerName", Code: 0xA430, Type: ASCII, IFD: ExifIFD},
	{Name: "BodySerialNumber", Code: 0xA431, Type: ASCII, IFD: ExifIFD},
	{Name: "LensMake", Code: 0xA433, Type: ASCII, IFD: ExifIFD},
	{Name: "LensModel", Code: 0xA434, Type: ASCII, IFD: ExifIFD},

	// GPS sub-IFD, stored generically
	{Name: "GPSVersionID", Code: 0x0000, Type: BYTE, IFD: GPSIFD, Count: 4},
	{Name: "GPSLatitudeRef", Code: 0x0001, Type: ASCII, IFD: GPSIFD, Count: 2},
	{Name: "GPSLatitude", Code: 0x0002, Type: RATIONAL, IFD: GPSIFD, Count: 3},
	{Name: "GPSLongitudeRef", Code: 0x0003, Type: ASCII, IFD: GPSIFD, Count: 2},
	{Name: "GPSLongitude", Code: 0x0004, Type: RATIONAL, IFD: GPSIFD, Count: 3},
	{Name: "GPSAltitudeRef", Code: 0x0005, Type: BYTE, IFD: GPSIFD, Count: 1},
	{Name: "GPSAltitude", Code: 0x0006, Type: RATIONAL, IFD: GPSIFD, Count: 1},
	{Name: "GPSDateStamp", Code: 0x001D, Type: ASCII, IFD: GPSIFD, Count: 11},
}

var (
	tagsByName = make(map[string]TagInfo, len(tagTable))
	tagsByCode = make(map[IFDKind]map[uint16]TagInfo)
)

func init() {
	for _, ti := range tagTable {
		tagsByName[ti.Name] = ti
		if tagsByCode[ti.IFD] == nil {
			tagsByCode[ti.IFD] = make(map[uint16]TagInfo)
		}
		tagsByCode[ti.IFD][ti.Code] = ti
	}
}

// Lookup returns the dictionary entry for a tag name.
func Lookup(name string) (TagInfo, error) {
	ti, ok := tagsByName[name]
	if !ok {
		return TagInfo{}, errors.Wrapf(core.ErrUnknownTag, "%q", name)
	}
	return ti, nil
}

// LookupCode returns the dictionary entry for a tag code within an IFD.
// Thumbnail directories share the IFD0 vocabulary.
func LookupCode(kind IFDKind, code uint16) (TagInfo, bool) {
	if kind == ThumbnailIFD {
		kind = IFD0
	}
	ti, ok := tagsByCode[kind][code]
	return ti, ok
}

// Names returns every settable tag name in sorted order.
func Names() []string {
	names := make([]string, 0, len(tagsByName))
	for n := range tagsByName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// checkDateTime enforces the "YYYY:MM:DD HH:MM:SS" layout.
func checkDateTime(v Value) error {
	s := string(v.(ASCIIText))
	if !ValidTimestamp(s) {
		return errors.Wrapf(core.ErrTypeMismatch, "timestamp %q is not YYYY:MM:DD HH:MM:SS", s)
	}
	return nil
}

// ValidTimestamp reports whether s has the EXIF date/time layout
// "YYYY:MM:DD HH:MM:SS" with every field numeric.
func ValidTimestamp(s string) bool {
	const layout = "dddd:dd:dd dd:dd:dd"
	if len(s) != len(layout) {
		return false
	}
	for i := 0; i < len(layout); i++ {
		c := s[i]
		if layout[i] == 'd' {
			if c < '0' || c > '9' {
				return false
			}
		} else if c != layout[i] {
			return false
		}
	}
	return true
}

// UserComment starts with an 8-byte character code.
var asciiCharCode = []byte("ASCII\x00\x00\x00")

func parseUserComment(s string) (Value, error) {
	return Undefined(append(append([]byte(nil), asciiCharCode...), s...)), nil
}

func parseText(t Type, s string) (Value, error) {
	switch t {
	case ASCII:
		return ASCIIText(s), nil
	case UNDEFINED:
		return Undefined(s), nil
	}
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, errors.New("empty value")
	}
	switch t {
	case BYTE:
		v := make(Bytes, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseUint(f, 0, 8)
			if err != nil {
				return nil, err
			}
			v[i] = byte(n)
		}
		return v, nil
	case SHORT:
		v := make(Shorts, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseUint(f, 0, 16)
			if err != nil {
				return nil, err
			}
			v[i] = uint16(n)
		}
		return v, nil
	case LONG:
		v := make(Longs, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseUint(f, 0, 32)
			if err != nil {
				return nil, err
			}
			v[i] = uint32(n)
		}
		return v, nil
	case SBYTE:
		v := make(SBytes, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseInt(f, 0, 8)
			if err != nil {
				return nil, err
			}
			v[i] = int8(n)
		}
		return v, nil
	case SSHORT:
		v := make(SShorts, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseInt(f, 0, 16)
			if err != nil {
				return nil, err
			}
			v[i] = int16(n)
		}
		return v, nil
	case SLONG:
		v := make(SLongs, len(fields))
		for i, f := range fields {
			n, err := strconv.ParseInt(f, 0, 32)
			if err != nil {
				return nil, err
			}
			v[i] = int32(n)
		}
		return v, nil
	case RATIONAL:
		v := make(Rationals, len(fields))
		for i, f := range fields {
			num, den, err := splitFraction(f)
			if err != nil {
				return nil, err
			}
			if num < 0 || den < 0 || num > math.MaxUint32 || den > math.MaxUint32 {
				return nil, errors.Errorf("%q out of range", f)
			}
			v[i] = Rational{uint32(num), uint32(den)}
		}
		return v, nil
	case SRATIONAL:
		v := make(SRationals, len(fields))
		for i, f := range fields {
			num, den, err := splitFraction(f)
			if err != nil {
				return nil, err
			}
			if num < math.MinInt32 || num > math.MaxInt32 || den < math.MinInt32 || den > math.MaxInt32 {
				return nil, errors.Errorf("%q out of range", f)
			}
			v[i] = SRational{int32(num), int32(den)}
		}
		return v, nil
	case FLOAT:
		v := make(Floats, len(fields))
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return nil, err
			}
			v[i] = float32(x)
		}
		return v, nil
	case DOUBLE:
		v := make(Doubles, len(fields))
		for i, f := range fields {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, err
			}
			v[i] = x
		}
		return v, nil
	}
	return nil, errors.Errorf("cannot parse %s values", t.Name())
}

// splitFraction parses "n/d" or a bare integer n (denominator 1).
func splitFraction(s string) (int64, int64, error) {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return n, 1, nil
	}
	d, err := strconv.ParseInt(den, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return n, d, nil
}
