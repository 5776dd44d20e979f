package param

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// TestInference verifies runtime shapes resolve to the expected wire types
func TestInference(t *testing.T) {
	cases := []struct {
		value any
		typ   WireType
	}{
		{true, TypeBool},
		{int16(1), TypeInt2},
		{int32(1), TypeInt4},
		{int(1), TypeInt8},
		{int64(1), TypeInt8},
		{float32(1), TypeFloat4},
		{float64(1), TypeFloat8},
		{"hello", TypeText},
		{[]byte{1, 2}, TypeBytea},
		{time.Now(), TypeTimestamp},
	}

	for _, c := range cases {
		p, err := New(c.value)
		if err != nil {
			t.Errorf("New(%T) failed: %v", c.value, err)
			continue
		}
		if p.Type() != c.typ {
			t.Errorf("New(%T): expected %s, got %s", c.value, c.typ, p.Type())
		}
	}
}

// TestNilIsNull verifies a nil value resolves to the NULL wire type with a
// zero oid and nil encoding
func TestNilIsNull(t *testing.T) {
	p, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) failed: %v", err)
	}
	if p.Type() != TypeNull {
		t.Errorf("Expected TypeNull, got %s", p.Type())
	}
	if p.OID() != 0 {
		t.Errorf("Expected oid 0 for NULL, got %d", p.OID())
	}
	enc, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if enc != nil {
		t.Errorf("Expected nil encoding for NULL, got %v", enc)
	}
}

// TestUnsupportedShape verifies inference fails for unmapped shapes instead
// of degrading silently
func TestUnsupportedShape(t *testing.T) {
	_, err := New(struct{ X int }{1})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Expected ErrUnsupportedType, got %v", err)
	}
	_, err = New(uint32(1))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("Expected ErrUnsupportedType for unsigned int, got %v", err)
	}
}

// TestExplicitTypeWins verifies NewTyped uses the given type verbatim, even
// for a nil value or a value whose inferred type differs
func TestExplicitTypeWins(t *testing.T) {
	// nil value with an explicit type keeps the type (NULL of that type)
	p := NewTyped(nil, TypeInt4)
	if p.Type() != TypeInt4 || p.OID() != 23 {
		t.Errorf("Expected explicit int4, got %s (oid %d)", p.Type(), p.OID())
	}
	enc, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if enc != nil {
		t.Errorf("Expected NULL encoding, got %v", enc)
	}

	// an int would infer to int8, the explicit int2 wins
	p = NewTyped(7, TypeInt2)
	if p.Type() != TypeInt2 {
		t.Errorf("Expected explicit int2, got %s", p.Type())
	}
	enc, err = p.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if !bytes.Equal(enc, []byte{0, 7}) {
		t.Errorf("Expected int2 encoding [0 7], got %v", enc)
	}
}

// TestBinaryEncodings verifies the big-endian binary forms
func TestBinaryEncodings(t *testing.T) {
	cases := []struct {
		name  string
		value any
		typ   WireType
		want  []byte
	}{
		{"bool true", true, TypeBool, []byte{1}},
		{"bool false", false, TypeBool, []byte{0}},
		{"int2", int16(-2), TypeInt2, []byte{0xFF, 0xFE}},
		{"int4", int32(1), TypeInt4, []byte{0, 0, 0, 1}},
		{"int8", int64(256), TypeInt8, []byte{0, 0, 0, 0, 0, 0, 1, 0}},
		{"float8", float64(1.0), TypeFloat8, []byte{0x3F, 0xF0, 0, 0, 0, 0, 0, 0}},
		{"bytea", []byte{0xDE, 0xAD}, TypeBytea, []byte{0xDE, 0xAD}},
	}

	for _, c := range cases {
		p := NewTyped(c.value, c.typ)
		if p.Format() != FormatBinary {
			t.Errorf("%s: expected binary format", c.name)
		}
		enc, err := p.Encode()
		if err != nil {
			t.Errorf("%s: encode failed: %v", c.name, err)
			continue
		}
		if !bytes.Equal(enc, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, enc)
		}
	}
}

// TestIntRangeChecks verifies narrowing encodings reject out-of-range values
func TestIntRangeChecks(t *testing.T) {
	if _, err := NewTyped(1<<20, TypeInt2).Encode(); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected range error for int2 overflow, got %v", err)
	}
	if _, err := NewTyped(int64(1)<<40, TypeInt4).Encode(); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected range error for int4 overflow, got %v", err)
	}
}

// TestTextEncodings verifies text-format types and the timestamp layout
func TestTextEncodings(t *testing.T) {
	p, _ := New("hello")
	if p.Format() != FormatText {
		t.Error("Expected text format for string")
	}
	enc, _ := p.Encode()
	if string(enc) != "hello" {
		t.Errorf("Expected %q, got %q", "hello", enc)
	}

	if NewTyped("x", TypeVarchar).OID() != 1043 {
		t.Error("Expected varchar oid 1043")
	}

	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456000, time.UTC)
	enc, err := NewTyped(ts, TypeTimestamp).Encode()
	if err != nil {
		t.Fatalf("Timestamp encode failed: %v", err)
	}
	if string(enc) != "2024-03-01 12:30:45.123456+00" {
		t.Errorf("Unexpected timestamp encoding: %q", enc)
	}
}

// TestUUIDEncoding verifies the uuid type accepts both canonical strings and
// raw 16-byte arrays
func TestUUIDEncoding(t *testing.T) {
	p := NewTyped("6b2a3f0e-1c4d-4e5f-8a9b-0c1d2e3f4a5b", TypeUUID)
	if p.OID() != 2950 || p.Format() != FormatText {
		t.Errorf("Unexpected uuid metadata: oid=%d format=%d", p.OID(), p.Format())
	}
	enc, err := p.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(enc) != "6b2a3f0e-1c4d-4e5f-8a9b-0c1d2e3f4a5b" {
		t.Errorf("Unexpected uuid encoding: %q", enc)
	}

	raw := [16]byte{0x6b, 0x2a, 0x3f, 0x0e, 0x1c, 0x4d, 0x4e, 0x5f, 0x8a, 0x9b, 0x0c, 0x1d, 0x2e, 0x3f, 0x4a, 0x5b}
	enc, err = NewTyped(raw, TypeUUID).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(enc) != "6b2a3f0e-1c4d-4e5f-8a9b-0c1d2e3f4a5b" {
		t.Errorf("Unexpected uuid encoding from raw bytes: %q", enc)
	}

	if _, err := NewTyped(1, TypeUUID).Encode(); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected mismatch error, got %v", err)
	}
}

// TestTypeMismatch verifies encoding a value against an incompatible binary
// type fails
func TestTypeMismatch(t *testing.T) {
	if _, err := NewTyped("nope", TypeBool).Encode(); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected mismatch error, got %v", err)
	}
	if _, err := NewTyped(1.5, TypeBytea).Encode(); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Expected mismatch error, got %v", err)
	}
}

// TestRepetitions verifies the batch repetition count
func TestRepetitions(t *testing.T) {
	p, _ := New(int32(5))
	if p.Repetitions() != 1 {
		t.Errorf("Expected default repetition 1, got %d", p.Repetitions())
	}

	r := p.Repeat(4)
	if r.Repetitions() != 4 {
		t.Errorf("Expected 4 repetitions, got %d", r.Repetitions())
	}
	// Repeat returns a copy, the original is untouched
	if p.Repetitions() != 1 {
		t.Errorf("Repeat mutated the original parameter: %d", p.Repetitions())
	}

	if p.Repeat(0).Repetitions() != 1 {
		t.Error("Expected repetition floor of 1")
	}
}
