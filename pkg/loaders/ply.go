package loaders

import (
	"fmt"
	"time"

	"github.com/kestrelray/gotracer/pkg/core"
	"github.com/kestrelray/gotracer/pkg/ply"
)

// PLYData contains the raw data loaded from a PLY file.
type PLYData struct {
	Vertices   []core.Vec3 // Vertex positions (x, y, z)
	Faces      []int       // Triangle indices (3 per triangle); n-gons are fan-triangulated
	Normals    []core.Vec3 // Per-vertex normals (nx, ny, nz) - empty if not present
	Colors     []core.Vec3 // Per-vertex colors (r, g, b) normalized to [0,1] - empty if not present
	TexCoords  []core.Vec2 // Per-vertex texture coordinates (u, v) - empty if not present
	Quality    []float64   // Per-vertex quality values - empty if not present
	Confidence []float64   // Per-vertex confidence values - empty if not present
	Intensity  []float64   // Per-vertex intensity values - empty if not present

	// Face properties, one entry per original (pre-triangulation) face.
	FaceColors    []core.Vec3   // Per-face colors - empty if not present
	FaceMaterials []int         // Per-face material indices - empty if not present
	FaceTexCoords [][]core.Vec2 // Per-face texture coordinates, one pair per face vertex

	TextureFile string // Filename from a PLY "TextureFile" comment, if present

	// Additional vertex properties (stored as generic float64/int slices)
	CustomFloatProps map[string][]float64 // Custom float properties by name
	CustomIntProps   map[string][]int     // Custom integer properties by name
}

// LoadPLY loads a PLY file and returns the raw vertex and face data. It
// delegates the actual parsing to pkg/ply, translating decoded values
// into a plyMeshImporter-backed PLYData as they arrive.
func LoadPLY(filename string) (*PLYData, error) {
	startTime := time.Now()

	data := &PLYData{
		CustomFloatProps: make(map[string][]float64),
		CustomIntProps:   make(map[string][]int),
	}
	imp := newPLYMeshImporter(data)
	diag := &capturingDiagnostics{}

	opts := ply.Options{
		VertexNormal:   true,
		VertexTexCoord: true,
		VertexColor:    true,
		ColorAlpha:     true,
		FaceColor:      true,
		FaceTexCoord:   true,
		Custom:         true,
	}

	ok, _ := ply.Read(filename, imp, opts, diag)
	if !ok {
		return nil, fmt.Errorf("failed to read PLY file %s: %s", filename, diag.lastFatal)
	}

	// quality/confidence/intensity have no dedicated role in pkg/ply
	// (they decode as ordinary custom properties); alias them onto the
	// dedicated PLYData fields for callers that expect them directly.
	if q, ok := data.CustomFloatProps["quality"]; ok {
		data.Quality = q
	}
	if c, ok := data.CustomFloatProps["confidence"]; ok {
		data.Confidence = c
	}
	if in, ok := data.CustomFloatProps["intensity"]; ok {
		data.Intensity = in
	}

	fmt.Printf("✅ Loaded PLY data: %d vertices, %d triangles in %v\n",
		len(data.Vertices), len(data.Faces)/3, time.Since(startTime))

	return data, nil
}

// capturingDiagnostics retains the most recent fatal message so LoadPLY
// can surface it as a Go error, while warnings still print immediately
// the way the rest of this package already reports progress.
type capturingDiagnostics struct {
	lastFatal string
}

func (d *capturingDiagnostics) Warn(format string, args ...any) {
	fmt.Printf("Warning: "+format+"\n", args...)
}

func (d *capturingDiagnostics) Fatal(format string, args ...any) {
	d.lastFatal = fmt.Sprintf(format, args...)
}

// ensureLen pads s with zero values until it has length n, growing it
// in place like a sparse array indexed by vertex/face position.
func ensureLen[T any](s []T, n int) []T {
	if len(s) >= n {
		return s
	}
	return append(s, make([]T, n-len(s))...)
}

// plyMeshImporter implements ply.Importer, translating decoded PLY
// values directly into a *PLYData as the decoder streams them.
type plyMeshImporter struct {
	data          *PLYData
	nextFaceIndex int
	propHandles   map[propKey]*propHandle
}

type propKey struct {
	owner ply.OwnerKind
	name  string
}

type propHandle struct {
	owner ply.OwnerKind
	name  string
}

func newPLYMeshImporter(data *PLYData) *plyMeshImporter {
	return &plyMeshImporter{data: data, propHandles: make(map[propKey]*propHandle)}
}

func (m *plyMeshImporter) Reserve(vertexCount, edgeCount, faceCount int) {
	m.data.Vertices = make([]core.Vec3, 0, vertexCount)
	m.data.Faces = make([]int, 0, faceCount*3)
}

func (m *plyMeshImporter) AddVertex() ply.VH {
	idx := len(m.data.Vertices)
	m.data.Vertices = append(m.data.Vertices, core.Vec3{})
	return idx
}

func (m *plyMeshImporter) AddVertexAt(p ply.Vec3) ply.VH {
	idx := len(m.data.Vertices)
	m.data.Vertices = append(m.data.Vertices, core.NewVec3(p.X, p.Y, p.Z))
	return idx
}

func (m *plyMeshImporter) SetPoint(v ply.VH, p ply.Vec3) {
	m.data.Vertices[v.(int)] = core.NewVec3(p.X, p.Y, p.Z)
}

func (m *plyMeshImporter) SetNormal(v ply.VH, n ply.Vec3) {
	idx := v.(int)
	m.data.Normals = ensureLen(m.data.Normals, idx+1)
	m.data.Normals[idx] = core.NewVec3(n.X, n.Y, n.Z)
}

func (m *plyMeshImporter) SetTexCoord(v ply.VH, t ply.Vec2) {
	idx := v.(int)
	m.data.TexCoords = ensureLen(m.data.TexCoords, idx+1)
	m.data.TexCoords[idx] = core.NewVec2(t.X, t.Y)
}

func (m *plyMeshImporter) SetColor(v ply.VH, c ply.RGBA8) {
	idx := v.(int)
	m.data.Colors = ensureLen(m.data.Colors, idx+1)
	m.data.Colors[idx] = core.NewVec3(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0)
}

// AddFace fan-triangulates vs around its first vertex, matching the
// common convention for n-gons with n>3 (the original implementation
// only ever saw triangles and required len(vs)==3).
func (m *plyMeshImporter) AddFace(vs []ply.VH) ply.FH {
	idx := m.nextFaceIndex
	m.nextFaceIndex++
	if len(vs) < 3 {
		return -1
	}
	indices := make([]int, len(vs))
	for i, vh := range vs {
		indices[i] = vh.(int)
	}
	for k := 1; k < len(indices)-1; k++ {
		m.data.Faces = append(m.data.Faces, indices[0], indices[k], indices[k+1])
	}
	return idx
}

func (m *plyMeshImporter) IsValidFace(f ply.FH) bool {
	idx, ok := f.(int)
	return ok && idx >= 0
}

func (m *plyMeshImporter) AddFaceTexCoords(f ply.FH, anchor ply.VH, coords []ply.Vec2) {
	idx, ok := f.(int)
	if !ok || idx < 0 {
		return
	}
	out := make([]core.Vec2, len(coords))
	for i, c := range coords {
		out[i] = core.NewVec2(c.X, c.Y)
	}
	m.data.FaceTexCoords = ensureLen(m.data.FaceTexCoords, idx+1)
	m.data.FaceTexCoords[idx] = out
}

func (m *plyMeshImporter) SetTexFile(name string) {
	m.data.TextureFile = name
}

func (m *plyMeshImporter) GetPropertyHandle(owner ply.OwnerKind, name string) (ply.PH, bool) {
	h, ok := m.propHandles[propKey{owner, name}]
	return h, ok
}

func (m *plyMeshImporter) AddProperty(owner ply.OwnerKind, name string) ply.PH {
	h := &propHandle{owner: owner, name: name}
	m.propHandles[propKey{owner, name}] = h
	return h
}

func (m *plyMeshImporter) SetProperty(owner ply.OwnerKind, ph ply.PH, handle any, value ply.PropertyValue) {
	h := ph.(*propHandle)
	idx, ok := handle.(int)
	if !ok || idx < 0 {
		return
	}
	switch h.owner {
	case ply.OwnerVertex:
		m.setVertexCustom(h.name, idx, value)
	case ply.OwnerFace:
		m.setFaceCustom(h.name, idx, value)
	}
}

func (m *plyMeshImporter) setVertexCustom(name string, idx int, value ply.PropertyValue) {
	switch v := value.(type) {
	case float32:
		m.data.CustomFloatProps[name] = ensureLen(m.data.CustomFloatProps[name], idx+1)
		m.data.CustomFloatProps[name][idx] = float64(v)
	case float64:
		m.data.CustomFloatProps[name] = ensureLen(m.data.CustomFloatProps[name], idx+1)
		m.data.CustomFloatProps[name][idx] = v
	case int8:
		m.setVertexCustomInt(name, idx, int(v))
	case int16:
		m.setVertexCustomInt(name, idx, int(v))
	case int32:
		m.setVertexCustomInt(name, idx, int(v))
	case uint8:
		m.setVertexCustomInt(name, idx, int(v))
	case uint16:
		m.setVertexCustomInt(name, idx, int(v))
	case uint32:
		m.setVertexCustomInt(name, idx, int(v))
	default:
		// List-valued custom properties don't fit the scalar-per-vertex
		// CustomFloatProps/CustomIntProps maps; they are simply not
		// surfaced through this adapter.
	}
}

func (m *plyMeshImporter) setVertexCustomInt(name string, idx, v int) {
	m.data.CustomIntProps[name] = ensureLen(m.data.CustomIntProps[name], idx+1)
	m.data.CustomIntProps[name][idx] = v
}

func (m *plyMeshImporter) setFaceCustom(name string, idx int, value ply.PropertyValue) {
	switch name {
	case "red", "diffuse_red":
		m.setFaceColorChannel(idx, 0, value)
	case "green", "diffuse_green":
		m.setFaceColorChannel(idx, 1, value)
	case "blue", "diffuse_blue":
		m.setFaceColorChannel(idx, 2, value)
	case "material_index", "material", "face_material":
		if n, ok := toInt(value); ok {
			m.data.FaceMaterials = ensureLen(m.data.FaceMaterials, idx+1)
			m.data.FaceMaterials[idx] = n
		}
	}
}

func (m *plyMeshImporter) setFaceColorChannel(idx, channel int, value ply.PropertyValue) {
	f, ok := toUnitFloat(value)
	if !ok {
		return
	}
	m.data.FaceColors = ensureLen(m.data.FaceColors, idx+1)
	c := m.data.FaceColors[idx]
	switch channel {
	case 0:
		c.X = f
	case 1:
		c.Y = f
	case 2:
		c.Z = f
	}
	m.data.FaceColors[idx] = c
}

// toUnitFloat normalizes a raw decoded value to [0,1], the same
// convention SetColor uses for vertex colors.
func toUnitFloat(value ply.PropertyValue) (float64, bool) {
	switch v := value.(type) {
	case uint8:
		return float64(v) / 255.0, true
	case uint16:
		return float64(v) / 65535.0, true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func toInt(value ply.PropertyValue) (int, bool) {
	switch v := value.(type) {
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	default:
		return 0, false
	}
}
