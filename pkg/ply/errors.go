package ply

import "errors"

// Sentinel errors for the fatal taxonomy in spec.md §7. Wrap with
// fmt.Errorf("...: %w", ErrX) to attach context; callers can still
// match with errors.Is.
var (
	// ErrBadMagic means the first non-empty line was not "ply"/"PLY".
	ErrBadMagic = errors.New("ply: not a PLY stream")
	// ErrUnsupportedFormat means the format line named a kind other
	// than ascii/binary_little_endian/binary_big_endian.
	ErrUnsupportedFormat = errors.New("ply: unsupported format")
	// ErrMalformedHeader covers any other header grammar violation.
	ErrMalformedHeader = errors.New("ply: malformed header")
	// ErrUnsupportedVertexDim means vertex_dim != 3.
	ErrUnsupportedVertexDim = errors.New("ply: unsupported vertex dimension")
	// ErrUnsupportedBinaryFace means a binary face property had a role
	// the decoder cannot interpret.
	ErrUnsupportedBinaryFace = errors.New("ply: unsupported binary face property")
	// ErrDecodeTypeMismatch means a numeric read was attempted against
	// an incompatible declared type (e.g. an integer field read as a
	// float-only value).
	ErrDecodeTypeMismatch = errors.New("ply: decode type mismatch")
	// ErrTruncatedStream means EOF was hit before vertex_count+face_count
	// elements were consumed.
	ErrTruncatedStream = errors.New("ply: truncated stream")
)
