package ply

// recordingImporter is a minimal Importer used only by this package's
// tests: it records every call instead of building a real mesh, so
// tests can assert on exactly what the decoder published.

type propKey struct {
	owner OwnerKind
	name  string
}

type propHandle struct {
	owner OwnerKind
	name  string
}

type vertexRecord struct {
	point               Vec3
	normal              Vec3
	tex                 Vec2
	color               RGBA8
	hasNormal, hasTex   bool
	hasColor            bool
}

type faceRecord struct {
	verts     []VH
	texAnchor VH
	texCoords []Vec2
	valid     bool
}

type recordingImporter struct {
	reservedVerts, reservedEdges, reservedFaces int
	vertices                                    []*vertexRecord
	faces                                       []*faceRecord
	texFile                                     string
	propHandles                                 map[propKey]*propHandle
	propValues                                  map[*propHandle]map[any]PropertyValue
}

func newRecordingImporter() *recordingImporter {
	return &recordingImporter{
		propHandles: make(map[propKey]*propHandle),
		propValues:  make(map[*propHandle]map[any]PropertyValue),
	}
}

func (m *recordingImporter) Reserve(vertexCount, edgeCount, faceCount int) {
	m.reservedVerts, m.reservedEdges, m.reservedFaces = vertexCount, edgeCount, faceCount
}

func (m *recordingImporter) AddVertex() VH {
	v := &vertexRecord{}
	m.vertices = append(m.vertices, v)
	return v
}

func (m *recordingImporter) AddVertexAt(p Vec3) VH {
	v := &vertexRecord{point: p}
	m.vertices = append(m.vertices, v)
	return v
}

func (m *recordingImporter) SetPoint(v VH, p Vec3)  { v.(*vertexRecord).point = p }
func (m *recordingImporter) SetNormal(v VH, n Vec3) { r := v.(*vertexRecord); r.normal, r.hasNormal = n, true }
func (m *recordingImporter) SetTexCoord(v VH, t Vec2) {
	r := v.(*vertexRecord)
	r.tex, r.hasTex = t, true
}
func (m *recordingImporter) SetColor(v VH, c RGBA8) { r := v.(*vertexRecord); r.color, r.hasColor = c, true }

func (m *recordingImporter) AddFace(vs []VH) FH {
	f := &faceRecord{verts: vs, valid: true}
	m.faces = append(m.faces, f)
	return f
}

func (m *recordingImporter) IsValidFace(f FH) bool {
	if f == nil {
		return false
	}
	r, ok := f.(*faceRecord)
	return ok && r.valid
}

func (m *recordingImporter) AddFaceTexCoords(f FH, anchor VH, coords []Vec2) {
	r := f.(*faceRecord)
	r.texAnchor, r.texCoords = anchor, coords
}

func (m *recordingImporter) SetTexFile(name string) { m.texFile = name }

func (m *recordingImporter) GetPropertyHandle(owner OwnerKind, name string) (PH, bool) {
	ph, ok := m.propHandles[propKey{owner, name}]
	return ph, ok
}

func (m *recordingImporter) AddProperty(owner OwnerKind, name string) PH {
	ph := &propHandle{owner: owner, name: name}
	m.propHandles[propKey{owner, name}] = ph
	return ph
}

func (m *recordingImporter) SetProperty(owner OwnerKind, ph PH, handle any, value PropertyValue) {
	h := ph.(*propHandle)
	if m.propValues[h] == nil {
		m.propValues[h] = make(map[any]PropertyValue)
	}
	m.propValues[h][handle] = value
}

func (m *recordingImporter) propValueFor(owner OwnerKind, name string, handle any) (PropertyValue, bool) {
	h, ok := m.propHandles[propKey{owner, name}]
	if !ok {
		return nil, false
	}
	v, ok := m.propValues[h][handle]
	return v, ok
}
