package param

import (
	"fmt"
	"time"
)

// Parameter is one encoded query parameter: a value (possibly absent, i.e.
// SQL NULL), its resolved wire type, and a repetition count describing how
// many bound occurrences in a batch share this single encoding.
type Parameter struct {
	value       any
	typ         WireType
	repetitions int
}

// New creates a parameter whose wire type is inferred from the value's
// runtime shape. A nil value resolves to the NULL wire type. A shape with no
// known mapping fails with ErrUnsupportedType.
func New(value any) (Parameter, error) {
	if value == nil {
		return Parameter{typ: TypeNull, repetitions: 1}, nil
	}
	t, err := infer(value)
	if err != nil {
		return Parameter{}, err
	}
	return Parameter{value: value, typ: t, repetitions: 1}, nil
}

// NewTyped creates a parameter with an explicit wire type. The explicit type
// is used verbatim, winning over inference regardless of the value's shape.
func NewTyped(value any, t WireType) Parameter {
	return Parameter{value: value, typ: t, repetitions: 1}
}

// Type returns the resolved wire type.
func (p Parameter) Type() WireType { return p.typ }

// OID returns the pg_type oid of the resolved wire type.
func (p Parameter) OID() uint32 { return p.typ.OID() }

// Format returns the parameter's format code.
func (p Parameter) Format() FormatCode { return p.typ.Format() }

// Encode serializes the value. Nil bytes mean SQL NULL.
func (p Parameter) Encode() ([]byte, error) { return p.typ.Encode(p.value) }

// Repetitions returns how many bound occurrences share this encoding,
// always at least 1.
func (p Parameter) Repetitions() int {
	if p.repetitions < 1 {
		return 1
	}
	return p.repetitions
}

// Repeat returns a copy of the parameter bound n times in a batch.
func (p Parameter) Repeat(n int) Parameter {
	if n < 1 {
		n = 1
	}
	p.repetitions = n
	return p
}

func (p Parameter) String() string {
	return fmt.Sprintf("Parameter{type: %s, repetitions: %d}", p.typ, p.Repetitions())
}

// infer maps a value's runtime shape to a wire type.
func infer(value any) (WireType, error) {
	switch value.(type) {
	case bool:
		return TypeBool, nil
	case int16:
		return TypeInt2, nil
	case int32:
		return TypeInt4, nil
	case int, int64:
		return TypeInt8, nil
	case float32:
		return TypeFloat4, nil
	case float64:
		return TypeFloat8, nil
	case string:
		return TypeText, nil
	case []byte:
		return TypeBytea, nil
	case time.Time:
		return TypeTimestamp, nil
	default:
		return TypeNull, fmt.Errorf("%w: %T", ErrUnsupportedType, value)
	}
}
