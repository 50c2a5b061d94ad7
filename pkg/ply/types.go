// Package ply implements a two-phase reader for the PLY (Polygon File
// Format) family: ASCII, binary_little_endian and binary_big_endian.
//
// The reader parses the textual header into a Schema describing the
// vertex/face element layout, then drives a type-directed streaming
// decoder over the payload, delivering decoded values to a caller
// supplied Importer. It does not build or own any mesh data structure
// itself; see the Importer interface in importer.go.
package ply

// ValueType is the closed set of PLY numeric type tokens. The eight
// un-suffixed aliases (Char, UChar, Short, UShort, Int, UInt, Float,
// Double) are kept distinct from their canonical counterparts rather
// than folded, so a Schema built from a header that used the aliases
// round-trips to an equal Schema, and diagnostics can echo the token
// the file actually used. Use Width/IsFloat/IsSigned for dispatch.
type ValueType uint8

const (
	Unsupported ValueType = iota
	Int8
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Float32
	Float64
	Char
	UChar
	Short
	UShort
	Int
	UInt
	Float
	Double
)

// valueTypeTokens maps every PLY header type token to its ValueType.
var valueTypeTokens = map[string]ValueType{
	"int8":    Int8,
	"uint8":   UInt8,
	"int16":   Int16,
	"uint16":  UInt16,
	"int32":   Int32,
	"uint32":  UInt32,
	"float32": Float32,
	"float64": Float64,
	"char":    Char,
	"uchar":   UChar,
	"short":   Short,
	"ushort":  UShort,
	"int":     Int,
	"uint":    UInt,
	"float":   Float,
	"double":  Double,
}

// ParseValueType maps a header type token to its ValueType. It returns
// Unsupported for anything not in the sixteen recognized tokens.
func ParseValueType(tok string) ValueType {
	if vt, ok := valueTypeTokens[tok]; ok {
		return vt
	}
	return Unsupported
}

// canonical folds an alias onto its canonical (suffixed) counterpart,
// used internally for width/signedness/float dispatch. It never
// escapes into a stored Schema, which keeps the original token's tag.
func (t ValueType) canonical() ValueType {
	switch t {
	case Char:
		return Int8
	case UChar:
		return UInt8
	case Short:
		return Int16
	case UShort:
		return UInt16
	case Int:
		return Int32
	case UInt:
		return UInt32
	case Float:
		return Float32
	case Double:
		return Float64
	default:
		return t
	}
}

// SizeOf returns the encoded width in bytes of t, or 0 for Unsupported.
func (t ValueType) SizeOf() int {
	switch t.canonical() {
	case Int8, UInt8:
		return 1
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether t is one of the two floating-point types.
func (t ValueType) IsFloat() bool {
	c := t.canonical()
	return c == Float32 || c == Float64
}

// IsSigned reports whether t is a signed integer type. Floats and
// Unsupported report false.
func (t ValueType) IsSigned() bool {
	switch t.canonical() {
	case Int8, Int16, Int32:
		return true
	default:
		return false
	}
}

// IsInteger reports whether t is any signed or unsigned integer type.
func (t ValueType) IsInteger() bool {
	switch t.canonical() {
	case Int8, UInt8, Int16, UInt16, Int32, UInt32:
		return true
	default:
		return false
	}
}

// String returns the canonical (suffixed) spelling of t.
func (t ValueType) String() string {
	switch t.canonical() {
	case Int8:
		return "int8"
	case UInt8:
		return "uint8"
	case Int16:
		return "int16"
	case UInt16:
		return "uint16"
	case Int32:
		return "int32"
	case UInt32:
		return "uint32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unsupported"
	}
}

// PropertyRole is the semantic role a property plays, independent of
// its declared name or numeric type.
type PropertyRole uint8

const (
	RoleUnsupported PropertyRole = iota
	RoleXCoord
	RoleYCoord
	RoleZCoord
	RoleXNorm
	RoleYNorm
	RoleZNorm
	RoleTexX
	RoleTexY
	RoleColorRed
	RoleColorGreen
	RoleColorBlue
	RoleColorAlpha
	RoleVertexIndices
	RoleFaceTexcoords
	RoleCustom
)

// OwnerKind distinguishes which element a custom property belongs to.
type OwnerKind uint8

const (
	OwnerVertex OwnerKind = iota
	OwnerFace
)

// Format is the payload encoding declared by the header's format line.
type Format uint8

const (
	FormatAscii Format = iota
	FormatBinaryLittleEndian
	FormatBinaryBigEndian
)

// PropertyInfo describes one declared property, in declaration order.
// ListIndexType is ValueType(0)/Unsupported-as-zero-is-ambiguous, so
// IsList is the authoritative flag for "this is a list property".
type PropertyInfo struct {
	Role          PropertyRole
	ValueType     ValueType
	Name          string
	IsList        bool
	ListIndexType ValueType // valid only when IsList
}

// Options is both the caller's read request and, after a read, the
// summary of what the file actually contained (spec.md §4.6).
type Options struct {
	Binary         bool
	MSB            bool
	LSB            bool
	Swap           bool
	VertexNormal   bool
	VertexTexCoord bool
	VertexColor    bool
	ColorAlpha     bool
	ColorFloat     bool
	FaceColor      bool
	FaceTexCoord   bool
	TexFile        bool
	Custom         bool
}

// Schema is the declarative layout captured from a PLY header. It is
// built fresh per read call and discarded once the payload has been
// decoded; no reader instance holds Schema state across reads.
type Schema struct {
	Format       Format
	VertexCount  uint32
	FaceCount    uint32
	VertexDim    uint32
	VertexProps  []PropertyInfo
	FaceProps    []PropertyInfo
	Comments     map[string]string
	CommentOrder []string // preserves declaration order for Comments
	Observed     Options
}
