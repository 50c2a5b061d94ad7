package ply

import "fmt"

// vertexScratch holds the per-vertex accumulator ASCII decoding
// publishes through Importer.Set* once a whole record has been read
// (spec.md §4.3's default "v=(0,0,0), n=(0,0,0), t=(0,0), c=(0,0,0,255)").
type vertexScratch struct {
	pos    Vec3
	normal Vec3
	tex    Vec2
	color  RGBA8
}

// pendingCustomValue defers publishing a custom property until the
// owning vertex/face handle is known.
type pendingCustomValue struct {
	p      PropertyInfo
	values []PropertyValue
}

// floatValue widens a decoded scalar to float64 via the only two
// legal paths (read_value_as_f32/f64, spec.md §4.1): any non-float
// source is a decode error, never a silent zero.
func floatValue(v PropertyValue, vt ValueType) (float64, error) {
	if vt.canonical() == Float64 {
		return asF64(v)
	}
	f, err := asF32(v)
	return float64(f), err
}

func decodeASCII(ts *tokenScanner, schema *Schema, imp Importer, opt Options, diag Diagnostics) error {
	vertexHandles := make([]VH, 0, schema.VertexCount)

	for i := uint32(0); i < schema.VertexCount; i++ {
		vh := imp.AddVertex()
		scratch := vertexScratch{color: RGBA8{A: 255}}
		var customs []pendingCustomValue

		for _, p := range schema.VertexProps {
			values, err := decodeVertexFieldASCII(ts, &scratch, p)
			if err != nil {
				return fmt.Errorf("ply: vertex %d property %q: %w", i, p.Name, err)
			}
			if values != nil && opt.Custom {
				customs = append(customs, pendingCustomValue{p: p, values: values})
			}
		}

		imp.SetPoint(vh, scratch.pos)
		if opt.VertexNormal && schema.Observed.VertexNormal {
			imp.SetNormal(vh, scratch.normal)
		}
		if opt.VertexTexCoord && schema.Observed.VertexTexCoord {
			imp.SetTexCoord(vh, scratch.tex)
		}
		if opt.VertexColor && schema.Observed.VertexColor {
			imp.SetColor(vh, scratch.color)
		}
		for _, c := range customs {
			publishVertexCustom(imp, c.p, vh, c.values)
		}
		vertexHandles = append(vertexHandles, vh)
	}

	for i := uint32(0); i < schema.FaceCount; i++ {
		var fh FH
		haveFace := false
		var faceVerts []VH

		for _, p := range schema.FaceProps {
			switch p.Role {
			case RoleVertexIndices:
				vs, err := readASCIIVertexIndices(ts, p, vertexHandles)
				if err != nil {
					return fmt.Errorf("ply: face %d vertex_indices: %w", i, err)
				}
				faceVerts = vs
				fh = imp.AddFace(vs)
				haveFace = imp.IsValidFace(fh)

			case RoleFaceTexcoords:
				// spec.md §9a (open question, preserved as-is): ASCII
				// reuses the face's vertex arity instead of reading
				// its own count.
				coords := make([]Vec2, len(faceVerts))
				for k := range coords {
					u, err := readASCIIFloat(ts, p.ValueType)
					if err != nil {
						return fmt.Errorf("ply: face %d texcoord u: %w", i, err)
					}
					v, err := readASCIIFloat(ts, p.ValueType)
					if err != nil {
						return fmt.Errorf("ply: face %d texcoord v: %w", i, err)
					}
					coords[k] = Vec2{X: u, Y: v}
				}
				if haveFace && opt.FaceTexCoord && schema.Observed.FaceTexCoord && len(faceVerts) > 0 {
					imp.AddFaceTexCoords(fh, faceVerts[0], coords)
				}

			case RoleCustom:
				values, err := readASCIICustomProperty(ts, p)
				if err != nil {
					return fmt.Errorf("ply: face %d custom property %q: %w", i, p.Name, err)
				}
				if haveFace && opt.Custom {
					publishFaceCustom(imp, p, fh, values)
				}

			default:
				if _, err := discardASCIIProperty(ts, p); err != nil {
					return fmt.Errorf("ply: face %d property %q: %w", i, p.Name, err)
				}
			}
		}
	}

	return nil
}

// decodeVertexFieldASCII reads one vertex property's field(s),
// folding known roles into scratch directly and returning custom
// values (nil for known roles) for deferred publishing once the
// vertex handle exists.
func decodeVertexFieldASCII(ts *tokenScanner, scratch *vertexScratch, p PropertyInfo) ([]PropertyValue, error) {
	switch p.Role {
	case RoleXCoord, RoleYCoord, RoleZCoord:
		f, err := readASCIIFloat(ts, p.ValueType)
		if err != nil {
			return nil, err
		}
		switch p.Role {
		case RoleXCoord:
			scratch.pos.X = f
		case RoleYCoord:
			scratch.pos.Y = f
		case RoleZCoord:
			scratch.pos.Z = f
		}
		return nil, nil

	case RoleXNorm, RoleYNorm, RoleZNorm:
		f, err := readASCIIFloat(ts, p.ValueType)
		if err != nil {
			return nil, err
		}
		switch p.Role {
		case RoleXNorm:
			scratch.normal.X = f
		case RoleYNorm:
			scratch.normal.Y = f
		case RoleZNorm:
			scratch.normal.Z = f
		}
		return nil, nil

	case RoleTexX, RoleTexY:
		f, err := readASCIIFloat(ts, p.ValueType)
		if err != nil {
			return nil, err
		}
		if p.Role == RoleTexX {
			scratch.tex.X = f
		} else {
			scratch.tex.Y = f
		}
		return nil, nil

	case RoleColorRed, RoleColorGreen, RoleColorBlue, RoleColorAlpha:
		c, err := readASCIIColorChannel(ts, p.ValueType)
		if err != nil {
			return nil, err
		}
		switch p.Role {
		case RoleColorRed:
			scratch.color.R = c
		case RoleColorGreen:
			scratch.color.G = c
		case RoleColorBlue:
			scratch.color.B = c
		case RoleColorAlpha:
			scratch.color.A = c
		}
		return nil, nil

	case RoleCustom:
		return readASCIICustomProperty(ts, p)

	default:
		_, err := discardASCIIProperty(ts, p)
		return nil, err
	}
}

func readASCIIFloat(ts *tokenScanner, vt ValueType) (float64, error) {
	v, err := readASCII(ts, vt)
	if err != nil {
		return 0, err
	}
	return floatValue(v, vt)
}

// readASCIIColorChannel implements spec.md §4.3's color rule: a
// float-declared channel is read in [0,1] and quantized via
// quantizeColorFloat32 (preserving §9b's truncation quirk); any other
// declared type is read as an integer and clamp-truncated.
func readASCIIColorChannel(ts *tokenScanner, vt ValueType) (uint8, error) {
	v, err := readASCII(ts, vt)
	if err != nil {
		return 0, err
	}
	if vt.IsFloat() {
		f, err := asF32(v)
		if err != nil {
			return 0, err
		}
		return quantizeColorFloat32(f), nil
	}
	n, err := asI32(v)
	if err != nil {
		return 0, err
	}
	return quantizeColorInteger(n), nil
}

func readASCIIVertexIndices(ts *tokenScanner, p PropertyInfo, vertexHandles []VH) ([]VH, error) {
	countVal, err := readASCII(ts, p.ListIndexType)
	if err != nil {
		return nil, err
	}
	n, err := asU32(countVal)
	if err != nil {
		return nil, err
	}
	vs := make([]VH, n)
	for k := uint32(0); k < n; k++ {
		v, err := readASCII(ts, p.ValueType)
		if err != nil {
			return nil, err
		}
		idx, err := asU32(v)
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(vertexHandles) {
			return nil, fmt.Errorf("ply: vertex index %d out of range (%d vertices): %w", idx, len(vertexHandles), ErrMalformedHeader)
		}
		vs[k] = vertexHandles[idx]
	}
	return vs, nil
}

func readASCIICustomProperty(ts *tokenScanner, p PropertyInfo) ([]PropertyValue, error) {
	if !p.IsList {
		v, err := readASCII(ts, p.ValueType)
		if err != nil {
			return nil, err
		}
		return []PropertyValue{v}, nil
	}
	countVal, err := readASCII(ts, p.ListIndexType)
	if err != nil {
		return nil, err
	}
	n, err := asU32(countVal)
	if err != nil {
		return nil, err
	}
	values := make([]PropertyValue, n)
	for k := uint32(0); k < n; k++ {
		v, err := readASCII(ts, p.ValueType)
		if err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, nil
}

// discardASCIIProperty consumes (without storing) one scalar token or
// one full list, for roles the caller did not request.
func discardASCIIProperty(ts *tokenScanner, p PropertyInfo) (PropertyValue, error) {
	if !p.IsList {
		return readASCII(ts, p.ValueType)
	}
	countVal, err := readASCII(ts, p.ListIndexType)
	if err != nil {
		return nil, err
	}
	n, err := asU32(countVal)
	if err != nil {
		return nil, err
	}
	for k := uint32(0); k < n; k++ {
		if _, err := readASCII(ts, p.ValueType); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func publishVertexCustom(imp Importer, p PropertyInfo, vh VH, values []PropertyValue) {
	if p.IsList {
		publishCustomList(imp, OwnerVertex, p.Name, vh, p.ValueType, values)
		return
	}
	publishCustomScalar(imp, OwnerVertex, p.Name, vh, values[0])
}

func publishFaceCustom(imp Importer, p PropertyInfo, fh FH, values []PropertyValue) {
	if p.IsList {
		publishCustomList(imp, OwnerFace, p.Name, fh, p.ValueType, values)
		return
	}
	publishCustomScalar(imp, OwnerFace, p.Name, fh, values[0])
}
