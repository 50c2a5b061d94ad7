// Command plyinfo reports the element counts and reconciled Options a
// PLY file decodes to, without building a mesh.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/kestrelray/gotracer/pkg/ply"
)

type Config struct {
	Path string
	Help bool
}

func main() {
	config := parseFlags()
	if config.Help {
		showHelp()
		return
	}
	if config.Path == "" {
		showHelp()
		os.Exit(1)
	}

	imp := newIntrospectImporter()
	opts := ply.Options{
		VertexNormal:   true,
		VertexTexCoord: true,
		VertexColor:    true,
		ColorAlpha:     true,
		FaceColor:      true,
		FaceTexCoord:   true,
		Custom:         true,
	}

	ok, eff := ply.Read(config.Path, imp, opts, nil)
	if !ok {
		fmt.Printf("failed to read %s\n", config.Path)
		os.Exit(1)
	}

	fmt.Printf("%s\n", config.Path)
	fmt.Printf("  vertices: %d\n", imp.vertexCount)
	fmt.Printf("  faces:    %d\n", imp.faceCount)
	fmt.Printf("  options:  %+v\n", eff)
	if imp.texFile != "" {
		fmt.Printf("  texture file: %s\n", imp.texFile)
	}
	printNames("  custom vertex properties", imp.customVertexProps)
	printNames("  custom face properties", imp.customFaceProps)
}

func printNames(label string, set map[string]bool) {
	if len(set) == 0 {
		return
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Printf("%s: %v\n", label, names)
}

func parseFlags() Config {
	config := Config{}
	flag.StringVar(&config.Path, "file", "", "path to a .ply file")
	flag.BoolVar(&config.Help, "help", false, "show help information")
	flag.Parse()
	return config
}

func showHelp() {
	fmt.Println("plyinfo")
	fmt.Println("Usage: plyinfo --file path/to/model.ply")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
}

// introspectImporter implements ply.Importer without building a mesh;
// it only tallies the shapes a Read call would have produced.
type introspectImporter struct {
	vertexCount, faceCount int
	texFile                string
	customVertexProps      map[string]bool
	customFaceProps        map[string]bool
	propHandles            map[introspectPropKey]*introspectPropHandle
}

type introspectPropKey struct {
	owner ply.OwnerKind
	name  string
}

type introspectPropHandle struct {
	owner ply.OwnerKind
	name  string
}

func newIntrospectImporter() *introspectImporter {
	return &introspectImporter{
		customVertexProps: make(map[string]bool),
		customFaceProps:   make(map[string]bool),
		propHandles:       make(map[introspectPropKey]*introspectPropHandle),
	}
}

func (m *introspectImporter) Reserve(vertexCount, edgeCount, faceCount int) {}

func (m *introspectImporter) AddVertex() ply.VH {
	idx := m.vertexCount
	m.vertexCount++
	return idx
}

func (m *introspectImporter) AddVertexAt(p ply.Vec3) ply.VH {
	return m.AddVertex()
}

func (m *introspectImporter) SetPoint(v ply.VH, p ply.Vec3)    {}
func (m *introspectImporter) SetNormal(v ply.VH, n ply.Vec3)   {}
func (m *introspectImporter) SetTexCoord(v ply.VH, t ply.Vec2) {}
func (m *introspectImporter) SetColor(v ply.VH, c ply.RGBA8)   {}

func (m *introspectImporter) AddFace(vs []ply.VH) ply.FH {
	idx := m.faceCount
	m.faceCount++
	return idx
}

func (m *introspectImporter) IsValidFace(f ply.FH) bool { return true }

func (m *introspectImporter) AddFaceTexCoords(f ply.FH, anchor ply.VH, coords []ply.Vec2) {}

func (m *introspectImporter) SetTexFile(name string) { m.texFile = name }

func (m *introspectImporter) GetPropertyHandle(owner ply.OwnerKind, name string) (ply.PH, bool) {
	h, ok := m.propHandles[introspectPropKey{owner, name}]
	return h, ok
}

func (m *introspectImporter) AddProperty(owner ply.OwnerKind, name string) ply.PH {
	h := &introspectPropHandle{owner: owner, name: name}
	m.propHandles[introspectPropKey{owner, name}] = h
	switch owner {
	case ply.OwnerVertex:
		m.customVertexProps[name] = true
	case ply.OwnerFace:
		m.customFaceProps[name] = true
	}
	return h
}

func (m *introspectImporter) SetProperty(owner ply.OwnerKind, ph ply.PH, handle any, value ply.PropertyValue) {
}
