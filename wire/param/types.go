// Package param converts application values into their PostgreSQL wire
// representation: an OID identifying the type, a format code (text or
// binary), and the serialized bytes bound into a Bind message. An explicit
// wire type always wins over inference from the value's runtime shape.
package param

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnsupportedType is returned when a value's runtime shape has no known
// wire mapping. Encoding never silently degrades to text.
var ErrUnsupportedType = errors.New("param: unsupported parameter type")

// --------------------------------------------------------------------------
// Format codes
// --------------------------------------------------------------------------

// FormatCode selects the representation of a parameter on the wire.
type FormatCode int16

const (
	FormatText   FormatCode = 0
	FormatBinary FormatCode = 1
)

// --------------------------------------------------------------------------
// Wire types
// --------------------------------------------------------------------------

// WireType identifies a PostgreSQL parameter type the engine can serialize.
type WireType int

const (
	TypeNull WireType = iota
	TypeBool
	TypeInt2
	TypeInt4
	TypeInt8
	TypeFloat4
	TypeFloat8
	TypeText
	TypeVarchar
	TypeBytea
	TypeTimestamp
	TypeUUID
)

// timestampLayout is the ISO form the backend accepts as timestamptz text.
const timestampLayout = "2006-01-02 15:04:05.999999-07"

// OID returns the pg_type oid of the wire type. TypeNull has no oid; zero
// lets the backend infer.
func (t WireType) OID() uint32 {
	switch t {
	case TypeBool:
		return 16
	case TypeInt2:
		return 21
	case TypeInt4:
		return 23
	case TypeInt8:
		return 20
	case TypeFloat4:
		return 700
	case TypeFloat8:
		return 701
	case TypeText:
		return 25
	case TypeVarchar:
		return 1043
	case TypeBytea:
		return 17
	case TypeTimestamp:
		return 1184
	case TypeUUID:
		return 2950
	default:
		return 0
	}
}

// Format returns the format code values of this type are serialized with.
func (t WireType) Format() FormatCode {
	switch t {
	case TypeBool, TypeInt2, TypeInt4, TypeInt8, TypeFloat4, TypeFloat8, TypeBytea:
		return FormatBinary
	default:
		return FormatText
	}
}

func (t WireType) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBool:
		return "bool"
	case TypeInt2:
		return "int2"
	case TypeInt4:
		return "int4"
	case TypeInt8:
		return "int8"
	case TypeFloat4:
		return "float4"
	case TypeFloat8:
		return "float8"
	case TypeText:
		return "text"
	case TypeVarchar:
		return "varchar"
	case TypeBytea:
		return "bytea"
	case TypeTimestamp:
		return "timestamptz"
	case TypeUUID:
		return "uuid"
	default:
		return "unknown"
	}
}

// Encode serializes a value in this wire type's format. A nil value encodes
// to nil bytes, which the Bind encoder writes as SQL NULL.
func (t WireType) Encode(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case TypeNull:
		return nil, nil

	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case TypeInt2:
		i, err := asInt64(v)
		if err != nil || i < math.MinInt16 || i > math.MaxInt16 {
			return nil, typeMismatch(t, v)
		}
		out := make([]byte, 2)
		binary.BigEndian.PutUint16(out, uint16(int16(i)))
		return out, nil

	case TypeInt4:
		i, err := asInt64(v)
		if err != nil || i < math.MinInt32 || i > math.MaxInt32 {
			return nil, typeMismatch(t, v)
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, uint32(int32(i)))
		return out, nil

	case TypeInt8:
		i, err := asInt64(v)
		if err != nil {
			return nil, typeMismatch(t, v)
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, uint64(i))
		return out, nil

	case TypeFloat4:
		f, ok := v.(float32)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		out := make([]byte, 4)
		binary.BigEndian.PutUint32(out, math.Float32bits(f))
		return out, nil

	case TypeFloat8:
		f, ok := v.(float64)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		out := make([]byte, 8)
		binary.BigEndian.PutUint64(out, math.Float64bits(f))
		return out, nil

	case TypeText, TypeVarchar:
		if s, ok := v.(string); ok {
			return []byte(s), nil
		}
		// explicit text overrides of non-string values render via %v
		return []byte(fmt.Sprintf("%v", v)), nil

	case TypeBytea:
		b, ok := v.([]byte)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil

	case TypeTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return nil, typeMismatch(t, v)
		}
		return []byte(ts.Format(timestampLayout)), nil

	case TypeUUID:
		switch u := v.(type) {
		case string:
			return []byte(u), nil
		case [16]byte:
			out := make([]byte, 36)
			hex.Encode(out[:8], u[:4])
			out[8] = '-'
			hex.Encode(out[9:13], u[4:6])
			out[13] = '-'
			hex.Encode(out[14:18], u[6:8])
			out[18] = '-'
			hex.Encode(out[19:23], u[8:10])
			out[23] = '-'
			hex.Encode(out[24:], u[10:])
			return out, nil
		default:
			return nil, typeMismatch(t, v)
		}

	default:
		return nil, fmt.Errorf("%w: wire type %s", ErrUnsupportedType, t)
	}
}

// asInt64 widens any signed integer value.
func asInt64(v any) (int64, error) {
	switch i := v.(type) {
	case int:
		return int64(i), nil
	case int16:
		return int64(i), nil
	case int32:
		return int64(i), nil
	case int64:
		return i, nil
	default:
		return 0, ErrUnsupportedType
	}
}

func typeMismatch(t WireType, v any) error {
	return fmt.Errorf("%w: cannot encode %T as %s", ErrUnsupportedType, v, t)
}
