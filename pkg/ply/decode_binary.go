package ply

import (
	"encoding/binary"
	"fmt"
	"io"
)

func decodeBinary(r io.Reader, order binary.ByteOrder, schema *Schema, imp Importer, opt Options, diag Diagnostics) error {
	vertexHandles := make([]VH, 0, schema.VertexCount)

	for i := uint32(0); i < schema.VertexCount; i++ {
		scratch := vertexScratch{color: RGBA8{A: 255}}
		var customs []pendingCustomValue

		for _, p := range schema.VertexProps {
			values, err := decodeVertexFieldBinary(r, order, &scratch, p)
			if err != nil {
				return fmt.Errorf("ply: vertex %d property %q: %w", i, p.Name, err)
			}
			if values != nil && opt.Custom {
				customs = append(customs, pendingCustomValue{p: p, values: values})
			}
		}

		vh := imp.AddVertexAt(scratch.pos)
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
				vs, err := readBinaryVertexIndices(r, order, p, vertexHandles)
				if err != nil {
					return fmt.Errorf("ply: face %d vertex_indices: %w", i, err)
				}
				faceVerts = vs
				fh = imp.AddFace(vs)
				haveFace = imp.IsValidFace(fh)

			case RoleFaceTexcoords:
				// Binary mode reads its own total-coordinate count
				// and halves it (spec.md §4.4; contrast with ASCII's
				// §9a quirk, which reuses the vertex arity instead).
				coords, err := readBinaryFaceTexcoords(r, order, p)
				if err != nil {
					return fmt.Errorf("ply: face %d texcoord: %w", i, err)
				}
				if haveFace && opt.FaceTexCoord && schema.Observed.FaceTexCoord && len(faceVerts) > 0 {
					imp.AddFaceTexCoords(fh, faceVerts[0], coords)
				}

			case RoleCustom:
				values, err := readBinaryCustomProperty(r, order, p)
				if err != nil {
					return fmt.Errorf("ply: face %d custom property %q: %w", i, p.Name, err)
				}
				if haveFace && opt.Custom {
					publishFaceCustom(imp, p, fh, values)
				}

			default:
				return fmt.Errorf("ply: face %d property %q: %w", i, p.Name, ErrUnsupportedBinaryFace)
			}
		}
	}

	return nil
}

func decodeVertexFieldBinary(r io.Reader, order binary.ByteOrder, scratch *vertexScratch, p PropertyInfo) ([]PropertyValue, error) {
	switch p.Role {
	case RoleXCoord, RoleYCoord, RoleZCoord:
		f, err := readBinaryFloat(r, order, p.ValueType)
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
		f, err := readBinaryFloat(r, order, p.ValueType)
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
		f, err := readBinaryFloat(r, order, p.ValueType)
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
		c, err := readBinaryColorChannel(r, order, p.ValueType)
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
		return readBinaryCustomProperty(r, order, p)

	default:
		// spec.md I4: unknown/unsupported vertex slots still consume
		// exactly size_of(type) bytes.
		_, err := discardBinaryProperty(r, order, p)
		return nil, err
	}
}

func readBinaryFloat(r io.Reader, order binary.ByteOrder, vt ValueType) (float64, error) {
	v, err := readBinary(r, order, vt)
	if err != nil {
		return 0, err
	}
	return floatValue(v, vt)
}

func readBinaryColorChannel(r io.Reader, order binary.ByteOrder, vt ValueType) (uint8, error) {
	v, err := readBinary(r, order, vt)
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

func readBinaryVertexIndices(r io.Reader, order binary.ByteOrder, p PropertyInfo, vertexHandles []VH) ([]VH, error) {
	countVal, err := readBinary(r, order, p.ListIndexType)
	if err != nil {
		return nil, err
	}
	n, err := asU32(countVal)
	if err != nil {
		return nil, err
	}
	vs := make([]VH, n)
	for k := uint32(0); k < n; k++ {
		v, err := readBinary(r, order, p.ValueType)
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

// readBinaryFaceTexcoords reads the total coordinate count (not the
// vertex count) and halves it, per spec.md §4.4.
func readBinaryFaceTexcoords(r io.Reader, order binary.ByteOrder, p PropertyInfo) ([]Vec2, error) {
	countVal, err := readBinary(r, order, p.ListIndexType)
	if err != nil {
		return nil, err
	}
	nTC, err := asU32(countVal)
	if err != nil {
		return nil, err
	}
	coords := make([]Vec2, nTC/2)
	for k := range coords {
		u, err := readBinaryFloat(r, order, p.ValueType)
		if err != nil {
			return nil, err
		}
		v, err := readBinaryFloat(r, order, p.ValueType)
		if err != nil {
			return nil, err
		}
		coords[k] = Vec2{X: u, Y: v}
	}
	return coords, nil
}

func readBinaryCustomProperty(r io.Reader, order binary.ByteOrder, p PropertyInfo) ([]PropertyValue, error) {
	if !p.IsList {
		v, err := readBinary(r, order, p.ValueType)
		if err != nil {
			return nil, err
		}
		return []PropertyValue{v}, nil
	}
	countVal, err := readBinary(r, order, p.ListIndexType)
	if err != nil {
		return nil, err
	}
	n, err := asU32(countVal)
	if err != nil {
		return nil, err
	}
	values := make([]PropertyValue, n)
	for k := uint32(0); k < n; k++ {
		v, err := readBinary(r, order, p.ValueType)
		if err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, nil
}

func discardBinaryProperty(r io.Reader, order binary.ByteOrder, p PropertyInfo) (PropertyValue, error) {
	if !p.IsList {
		return readBinary(r, order, p.ValueType)
	}
	countVal, err := readBinary(r, order, p.ListIndexType)
	if err != nil {
		return nil, err
	}
	n, err := asU32(countVal)
	if err != nil {
		return nil, err
	}
	for k := uint32(0); k < n; k++ {
		if _, err := readBinary(r, order, p.ValueType); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
