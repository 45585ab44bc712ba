// Package exif implements the TIFF-style tag directory that carries EXIF
// metadata: a static tag dictionary, an IFD tree codec for both byte
// orders, and an editable in-memory model of the directory tree.
package exif

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Type is a TIFF field type code.
type Type uint16

// TIFF data types (uppercase as in TIFF 6.0).
const (
	BYTE      Type = 1
	ASCII     Type = 2
	SHORT     Type = 3
	LONG      Type = 4
	RATIONAL  Type = 5
	SBYTE     Type = 6
	UNDEFINED Type = 7
	SSHORT    Type = 8
	SLONG     Type = 9
	SRATIONAL Type = 10
	FLOAT     Type = 11
	DOUBLE    Type = 12
)

var typeNames = map[Type]string{
	BYTE:      "Byte",
	ASCII:     "ASCII",
	SHORT:     "Short",
	LONG:      "Long",
	RATIONAL:  "Rational",
	SBYTE:     "SByte",
	UNDEFINED: "Undefined",
	SSHORT:    "SShort",
	SLONG:     "SLong",
	SRATIONAL: "SRational",
	FLOAT:     "Float",
	DOUBLE:    "Double",
}

var typeSizes = map[Type]uint32{
	BYTE:      1,
	ASCII:     1,
	SHORT:     2,
	LONG:      4,
	RATIONAL:  8,
	SBYTE:     1,
	UNDEFINED: 1,
	SSHORT:    2,
	SLONG:     4,
	SRATIONAL: 8,
	FLOAT:     4,
	DOUBLE:    8,
}

// Name returns the name of a TIFF type.
func (t Type) Name() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(t))
}

// Size returns the byte size of a single value of the type, or 0 for a
// type code outside the TIFF 6.0 enumeration.
func (t Type) Size() uint32 {
	return typeSizes[t]
}

// Known reports whether t is one of the recognised TIFF types.
func (t Type) Known() bool {
	_, ok := typeSizes[t]
	return ok
}

// Value is a typed tag value. The concrete types below form a closed set;
// the type and count of an entry are always derived from its Value.
type Value interface {
	Type() Type
	Count() uint32
	String() string
	encode(order binary.ByteOrder) []byte
}

// Rational is an unsigned fraction.
type Rational struct{ Num, Den uint32 }

// SRational is a signed fraction.
type SRational struct{ Num, Den int32 }

type (
	Bytes      []byte
	ASCIIText  string
	Shorts     []uint16
	Longs      []uint32
	Rationals  []Rational
	SBytes     []int8
	Undefined  []byte
	SShorts    []int16
	SLongs     []int32
	SRationals []SRational
	Floats     []float32
	Doubles    []float64
)

// Opaque holds an entry whose type code is outside the TIFF enumeration.
// Its 4-byte value field is carried verbatim since its size is unknown.
// When that field was really an offset into the segment, the data it
// pointed at is not copied and the offset is not rewritten on Encode, so
// after a rebuild it may point anywhere. Decode with Strict set to refuse
// such entries instead.
type Opaque struct {
	Code Type
	N    uint32
	Raw  [4]byte
}

func (Bytes) Type() Type      { return BYTE }
func (ASCIIText) Type() Type  { return ASCII }
func (Shorts) Type() Type     { return SHORT }
func (Longs) Type() Type      { return LONG }
func (Rationals) Type() Type  { return RATIONAL }
func (SBytes) Type() Type     { return SBYTE }
func (Undefined) Type() Type  { return UNDEFINED }
func (SShorts) Type() Type    { return SSHORT }
func (SLongs) Type() Type     { return SLONG }
func (SRationals) Type() Type { return SRATIONAL }
func (Floats) Type() Type     { return FLOAT }
func (Doubles) Type() Type    { return DOUBLE }
func (o Opaque) Type() Type   { return o.Code }

func (v Bytes) Count() uint32 { return uint32(len(v)) }

// Count includes the NUL terminator written on encode.
func (v ASCIIText) Count() uint32  { return uint32(len(v)) + 1 }
func (v Shorts) Count() uint32     { return uint32(len(v)) }
func (v Longs) Count() uint32      { return uint32(len(v)) }
func (v Rationals) Count() uint32  { return uint32(len(v)) }
func (v SBytes) Count() uint32     { return uint32(len(v)) }
func (v Undefined) Count() uint32  { return uint32(len(v)) }
func (v SShorts) Count() uint32    { return uint32(len(v)) }
func (v SLongs) Count() uint32     { return uint32(len(v)) }
func (v SRationals) Count() uint32 { return uint32(len(v)) }
func (v Floats) Count() uint32     { return uint32(len(v)) }
func (v Doubles) Count() uint32    { return uint32(len(v)) }
func (o Opaque) Count() uint32     { return o.N }

func (v Bytes) encode(binary.ByteOrder) []byte { return append([]byte(nil), v...) }

func (v ASCIIText) encode(binary.ByteOrder) []byte { return append([]byte(v), 0) }

func (v Shorts) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		order.PutUint16(b[2*i:], x)
	}
	return b
}

func (v Longs) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		order.PutUint32(b[4*i:], x)
	}
	return b
}

func (v Rationals) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		order.PutUint32(b[8*i:], x.Num)
		order.PutUint32(b[8*i+4:], x.Den)
	}
	return b
}

func (v SBytes) encode(binary.ByteOrder) []byte {
	b := make([]byte, len(v))
	for i, x := range v {
		b[i] = byte(x)
	}
	return b
}

func (v Undefined) encode(binary.ByteOrder) []byte { return append([]byte(nil), v...) }

func (v SShorts) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		order.PutUint16(b[2*i:], uint16(x))
	}
	return b
}

func (v SLongs) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		order.PutUint32(b[4*i:], uint32(x))
	}
	return b
}

func (v SRationals) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		order.PutUint32(b[8*i:], uint32(x.Num))
		order.PutUint32(b[8*i+4:], uint32(x.Den))
	}
	return b
}

func (v Floats) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		order.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func (v Doubles) encode(order binary.ByteOrder) []byte {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		order.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return b
}

func (o Opaque) encode(binary.ByteOrder) []byte { return o.Raw[:] }

func (v Bytes) String() string     { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (v ASCIIText) String() string { return string(v) }
func (v Shorts) String() string    { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (v Longs) String() string     { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (v Rationals) String() string {
	return joinValues(len(v), func(i int) string { return fmt.Sprintf("%d/%d", v[i].Num, v[i].Den) })
}
func (v SBytes) String() string    { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (v Undefined) String() string { return fmt.Sprintf("% x", []byte(v)) }
func (v SShorts) String() string   { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (v SLongs) String() string    { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (v SRationals) String() string {
	return joinValues(len(v), func(i int) string { return fmt.Sprintf("%d/%d", v[i].Num, v[i].Den) })
}
func (v Floats) String() string  { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (v Doubles) String() string { return joinValues(len(v), func(i int) string { return fmt.Sprint(v[i]) }) }
func (o Opaque) String() string {
	return fmt.Sprintf("type %d, count %d, raw % x", uint16(o.Code), o.N, o.Raw[:])
}

func joinValues(n int, f func(i int) string) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = f(i)
	}
	return strings.Join(parts, " ")
}

// decodeValue converts the raw bytes of a recognised type into a Value.
// raw must hold exactly count*t.Size() bytes.
func decodeValue(t Type, count uint32, raw []byte, order binary.ByteOrder) Value {
	n := int(count)
	switch t {
	case BYTE:
		return Bytes(append([]byte(nil), raw...))
	case ASCII:
		// Drop exactly one terminator so re-encoding reproduces the bytes.
		if len(raw) > 0 && raw[len(raw)-1] == 0 {
			raw = raw[:len(raw)-1]
		}
		return ASCIIText(raw)
	case SHORT:
		v := make(Shorts, n)
		for i := range v {
			v[i] = order.Uint16(raw[2*i:])
		}
		return v
	case LONG:
		v := make(Longs, n)
		for i := range v {
			v[i] = order.Uint32(raw[4*i:])
		}
		return v
	case RATIONAL:
		v := make(Rationals, n)
		for i := range v {
			v[i] = Rational{order.Uint32(raw[8*i:]), order.Uint32(raw[8*i+4:])}
		}
		return v
	case SBYTE:
		v := make(SBytes, n)
		for i := range v {
			v[i] = int8(raw[i])
		}
		return v
	case UNDEFINED:
		return Undefined(append([]byte(nil), raw...))
	case SSHORT:
		v := make(SShorts, n)
		for i := range v {
			v[i] = int16(order.Uint16(raw[2*i:]))
		}
		return v
	case SLONG:
		v := make(SLongs, n)
		for i := range v {
			v[i] = int32(order.Uint32(raw[4*i:]))
		}
		return v
	case SRATIONAL:
		v := make(SRationals, n)
		for i := range v {
			v[i] = SRational{int32(order.Uint32(raw[8*i:])), int32(order.Uint32(raw[8*i+4:]))}
		}
		return v
	case FLOAT:
		v := make(Floats, n)
		for i := range v {
			v[i] = math.Float32frombits(order.Uint32(raw[4*i:]))
		}
		return v
	case DOUBLE:
		v := make(Doubles, n)
		for i := range v {
			v[i] = math.Float64frombits(order.Uint64(raw[8*i:]))
		}
		return v
	}
	return nil
}
