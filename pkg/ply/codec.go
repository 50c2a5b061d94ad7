package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/chewxy/math32"
)

// tokenScanner pulls whitespace-delimited ASCII tokens off a stream.
// PLY's ASCII payload is whitespace-delimited, not strictly
// one-record-per-line, so word scanning (rather than the line-oriented
// ReadString loop in header.go) is the correct unit here.
type tokenScanner struct {
	sc *bufio.Scanner
}

func newTokenScanner(r io.Reader) *tokenScanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)
	return &tokenScanner{sc: sc}
}

// next returns the next whitespace-delimited token, or an error
// wrapping ErrTruncatedStream if the stream ends first.
func (t *tokenScanner) next() (string, error) {
	if !t.sc.Scan() {
		if err := t.sc.Err(); err != nil {
			return "", fmt.Errorf("ply: reading ascii token: %w", err)
		}
		return "", fmt.Errorf("ply: ascii token: %w", ErrTruncatedStream)
	}
	return t.sc.Text(), nil
}

// readASCII parses one token as vt and returns it boxed as the
// matching Go numeric type (int8/uint8/.../float32/float64).
// Overflow is not detected, per spec.md §4.1.
func readASCII(t *tokenScanner, vt ValueType) (PropertyValue, error) {
	tok, err := t.next()
	if err != nil {
		return nil, err
	}
	if vt.IsFloat() {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("ply: ascii float token %q: %w", tok, ErrMalformedHeader)
		}
		if vt.canonical() == Float32 {
			return float32(f), nil
		}
		return f, nil
	}

	if vt.IsSigned() {
		n, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ply: ascii int token %q: %w", tok, ErrMalformedHeader)
		}
		switch vt.canonical() {
		case Int8:
			return int8(n), nil
		case Int16:
			return int16(n), nil
		default:
			return int32(n), nil
		}
	}

	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("ply: ascii uint token %q: %w", tok, ErrMalformedHeader)
	}
	switch vt.canonical() {
	case UInt8:
		return uint8(n), nil
	case UInt16:
		return uint16(n), nil
	default:
		return uint32(n), nil
	}
}

// readBinary reads exactly vt.SizeOf() bytes from r, byte-order
// corrected by order, and returns the matching Go numeric type.
func readBinary(r io.Reader, order binary.ByteOrder, vt ValueType) (PropertyValue, error) {
	var buf [8]byte
	n := vt.SizeOf()
	if n == 0 {
		return nil, fmt.Errorf("ply: %s: %w", vt, ErrDecodeTypeMismatch)
	}
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		return nil, fmt.Errorf("ply: reading %s: %w", vt, ErrTruncatedStream)
	}
	switch vt.canonical() {
	case Int8:
		return int8(buf[0]), nil
	case UInt8:
		return buf[0], nil
	case Int16:
		return int16(order.Uint16(buf[:2])), nil
	case UInt16:
		return order.Uint16(buf[:2]), nil
	case Int32:
		return int32(order.Uint32(buf[:4])), nil
	case UInt32:
		return order.Uint32(buf[:4]), nil
	case Float32:
		return math32.Float32frombits(order.Uint32(buf[:4])), nil
	case Float64:
		return math.Float64frombits(order.Uint64(buf[:8])), nil
	default:
		return nil, fmt.Errorf("ply: %s: %w", vt, ErrDecodeTypeMismatch)
	}
}

// asF32 implements read_value_as_f32: valid only for a float32 source.
func asF32(v PropertyValue) (float32, error) {
	f, ok := v.(float32)
	if !ok {
		return 0, fmt.Errorf("ply: value %T is not float32: %w", v, ErrDecodeTypeMismatch)
	}
	return f, nil
}

// asF64 implements read_value_as_f64: valid only for a float64 source.
func asF64(v PropertyValue) (float64, error) {
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("ply: value %T is not float64: %w", v, ErrDecodeTypeMismatch)
	}
	return f, nil
}

// asI32 implements read_integer_as_i32: any integer width ≤32 bits,
// sign-extended to 32 bits.
func asI32(v PropertyValue) (int32, error) {
	switch n := v.(type) {
	case int8:
		return int32(n), nil
	case int16:
		return int32(n), nil
	case int32:
		return n, nil
	case uint8:
		return int32(n), nil
	case uint16:
		return int32(n), nil
	case uint32:
		return int32(n), nil
	default:
		return 0, fmt.Errorf("ply: value %T is not an integer: %w", v, ErrDecodeTypeMismatch)
	}
}

// asU32 implements read_integer_as_u32: any integer width ≤32 bits,
// zero-extended to 32 bits (signed values reinterpret their bit
// pattern, matching how PLY list indices and counts are always
// declared unsigned in practice).
func asU32(v PropertyValue) (uint32, error) {
	switch n := v.(type) {
	case int8:
		return uint32(uint8(n)), nil
	case int16:
		return uint32(uint16(n)), nil
	case int32:
		return uint32(n), nil
	case uint8:
		return uint32(n), nil
	case uint16:
		return uint32(n), nil
	case uint32:
		return n, nil
	default:
		return 0, fmt.Errorf("ply: value %T is not an integer: %w", v, ErrDecodeTypeMismatch)
	}
}

// quantizeColorFloat32 implements spec.md §4.3's color quantization
// for a float-declared channel: floor(x·255), un-rounded, truncated to
// u8. This preserves the documented rounding quirk (spec.md §9b):
// 1.0 -> 255 but 0.999999 -> 254.
func quantizeColorFloat32(x float32) uint8 {
	q := math32.Floor(x * 255)
	if q < 0 {
		return 0
	}
	if q > 255 {
		return 255
	}
	return uint8(q)
}

// quantizeColorInteger implements the integer-channel path: clamp and
// truncate to u8.
func quantizeColorInteger(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
