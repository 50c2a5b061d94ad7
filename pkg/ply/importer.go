package ply

// VH, FH and PH are opaque handles the Importer hands back to the
// decoder. The decoder never inspects their contents; an Importer
// that rejects a face (e.g. bad topology) returns an invalid FH via
// its own zero value / sentinel convention and the decoder continues.
type VH any
type FH any
type PH any

// Vec3 and Vec2 are the minimal value types the decoder passes to an
// Importer; a host mesh structure converts them to its own vector
// type. Kept separate from core.Vec3/Vec2 so this package has no
// dependency on the rest of the module.
type Vec3 struct{ X, Y, Z float64 }
type Vec2 struct{ X, Y float64 }

// RGBA8 is a per-vertex/face color with channels in [0,255].
type RGBA8 struct{ R, G, B, A uint8 }

// PropertyValue is the value written into a custom property slot: one
// of the eight scalar widths, or a slice of one of them for a list
// property (spec.md §4.5).
type PropertyValue any

// Importer is the sink the decoder delivers decoded mesh data to
// (spec.md §6.3). It is not required to be concurrency-safe; a single
// read call drives it from one goroutine.
type Importer interface {
	// Reserve is a capacity hint; implementations may no-op it.
	Reserve(vertexCount, edgeCount, faceCount int)

	// AddVertex creates a vertex with default scratch state (for
	// ASCII decoding, which publishes fields incrementally).
	AddVertex() VH
	// AddVertexAt creates a vertex with its final position already
	// known (for binary decoding, which reads the whole position at
	// once).
	AddVertexAt(p Vec3) VH

	SetPoint(v VH, p Vec3)
	SetNormal(v VH, n Vec3)
	SetTexCoord(v VH, t Vec2)
	SetColor(v VH, c RGBA8)

	// AddFace creates a face from an ordered vertex handle list. It
	// may return a nil/invalid FH if the topology is rejected; the
	// decoder treats any handle for which IsValidFace returns false
	// as unusable for subsequent face-texcoord/custom-property calls.
	AddFace(vs []VH) FH
	IsValidFace(f FH) bool
	AddFaceTexCoords(f FH, anchor VH, coords []Vec2)

	SetTexFile(name string)

	// Generic named-attribute primitives backing custom scalar/list
	// properties (spec.md §4.5).
	GetPropertyHandle(owner OwnerKind, name string) (PH, bool)
	AddProperty(owner OwnerKind, name string) PH
	SetProperty(owner OwnerKind, ph PH, handle any, value PropertyValue)
}
