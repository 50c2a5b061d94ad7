package ply

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// vertexRoleAliases maps a vertex property name to its role. Names not
// present here fall through to RoleCustom (spec.md §4.2, §9 "type
// aliases"/"overloadable aliases").
var vertexRoleAliases = map[string]PropertyRole{
	"x": RoleXCoord, "y": RoleYCoord, "z": RoleZCoord,
	"nx": RoleXNorm, "ny": RoleYNorm, "nz": RoleZNorm,
	"u": RoleTexX, "s": RoleTexX,
	"v": RoleTexY, "t": RoleTexY,
	"red": RoleColorRed, "diffuse_red": RoleColorRed,
	"green": RoleColorGreen, "diffuse_green": RoleColorGreen,
	"blue": RoleColorBlue, "diffuse_blue": RoleColorBlue,
	"alpha": RoleColorAlpha,
}

// faceColorAliases is the subset of vertexRoleAliases that denotes a
// color channel, reused to detect (but not specially decode) a
// per-face color property; see the elemFace branch of parseProperty.
var faceColorAliases = map[string]struct{}{
	"red": {}, "diffuse_red": {},
	"green": {}, "diffuse_green": {},
	"blue": {}, "diffuse_blue": {},
	"alpha": {},
}

// parseHeader reads header lines from br (via ReadString, so br's
// position after return is exactly the first payload byte — no
// separate seek or byte-counting is needed, which is what keeps
// binary mode correct regardless of line-ending convention; see
// spec.md §4.2 "Post-parse" and §9d) and returns the resulting Schema.
func parseHeader(br *bufio.Reader, diag Diagnostics) (*Schema, error) {
	diag = diagOrDefault(diag)

	magic, err := readHeaderLine(br)
	if err != nil {
		return nil, err
	}
	if magic != "ply" && magic != "PLY" {
		return nil, ErrBadMagic
	}

	schema := &Schema{
		Comments: make(map[string]string),
	}

	current := elemNone

	for {
		line, err := readHeaderLine(br)
		if err != nil {
			return nil, err
		}
		if line == "end_header" {
			break
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, fmt.Errorf("ply: format line: %w", ErrMalformedHeader)
			}
			switch fields[1] {
			case "ascii":
				schema.Format = FormatAscii
			case "binary_little_endian":
				schema.Format = FormatBinaryLittleEndian
				schema.Observed.Binary = true
				schema.Observed.LSB = true
			case "binary_big_endian":
				schema.Format = FormatBinaryBigEndian
				schema.Observed.Binary = true
				schema.Observed.MSB = true
			default:
				return nil, fmt.Errorf("ply: format %q: %w", fields[1], ErrUnsupportedFormat)
			}

		case "comment":
			if len(fields) < 2 {
				continue
			}
			key := fields[1]
			value := ""
			if len(fields) >= 3 {
				// spec.md §9c: only the first token after the key is
				// kept, the rest of the line is discarded.
				value = fields[2]
			}
			if _, seen := schema.Comments[key]; !seen {
				schema.CommentOrder = append(schema.CommentOrder, key)
			}
			schema.Comments[key] = value
			if key == "TextureFile" {
				schema.Observed.TexFile = true
			}

		case "element":
			if len(fields) < 3 {
				return nil, fmt.Errorf("ply: element line: %w", ErrMalformedHeader)
			}
			count, err := strconv.ParseUint(fields[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("ply: element count %q: %w", fields[2], ErrMalformedHeader)
			}
			switch fields[1] {
			case "vertex":
				current = elemVertex
				schema.VertexCount = uint32(count)
			case "face":
				current = elemFace
				schema.FaceCount = uint32(count)
			default:
				current = elemOther
				diag.Warn("unknown element %q ignored", fields[1])
			}

		case "property":
			if err := parseProperty(schema, current, fields[1:], diag); err != nil {
				return nil, err
			}
		}
	}

	return schema, nil
}

func readHeaderLine(br *bufio.Reader) (string, error) {
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			return trimmed, nil
		}
		if err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("ply: header ended early: %w", ErrMalformedHeader)
			}
			return "", fmt.Errorf("ply: reading header: %w", err)
		}
	}
}

// Element scope constants shared by parseHeader and parseProperty.
const (
	elemNone = iota
	elemVertex
	elemFace
	elemOther
)

func parseProperty(schema *Schema, current int, fields []string, diag Diagnostics) error {
	if len(fields) < 2 {
		return fmt.Errorf("ply: property line: %w", ErrMalformedHeader)
	}

	if fields[0] == "list" {
		if len(fields) < 4 {
			return fmt.Errorf("ply: list property line: %w", ErrMalformedHeader)
		}
		idxType := ParseValueType(fields[1])
		entryType := ParseValueType(fields[2])
		name := fields[3]

		if idxType != UInt8 && idxType != UChar {
			diag.Warn("list property %q has unsupported index type %q, skipped", name, fields[1])
			return nil
		}

		switch current {
		case elemFace:
			return addFaceListProperty(schema, name, entryType, idxType, schema.Format != FormatAscii, diag)
		case elemVertex:
			// spec.md §4.3/§4.5 only describes custom vertex lists,
			// never a known vertex list role; I4 demotes them to
			// RoleUnsupported in binary files, same as a scalar
			// vertex custom (addVertexProperty).
			if schema.Format != FormatAscii {
				diag.Warn("vertex list property %q demoted (unsupported in binary mode)", name)
				schema.VertexProps = append(schema.VertexProps, PropertyInfo{
					Role: RoleUnsupported, ValueType: entryType, Name: name,
					IsList: true, ListIndexType: idxType,
				})
				return nil
			}
			diag.Warn("vertex list property %q treated as custom", name)
			schema.VertexProps = append(schema.VertexProps, PropertyInfo{
				Role: RoleCustom, ValueType: entryType, Name: name,
				IsList: true, ListIndexType: idxType,
			})
			schema.Observed.Custom = true
		default:
			diag.Warn("list property %q outside vertex/face element ignored", name)
		}
		return nil
	}

	vt, name, ok := autoDetectTypeAndName(fields[0], fields[1])
	if !ok {
		return fmt.Errorf("ply: property %q %q: %w", fields[0], fields[1], ErrMalformedHeader)
	}

	switch current {
	case elemVertex:
		addVertexProperty(schema, name, vt, diag)
	case elemFace:
		// spec.md's vertex color alias table has no face-element
		// counterpart operation in the Importer (§6.3 has no
		// set_face_color); a face property named like a color channel
		// is still carried as CUSTOM_PROP, but FaceColor is surfaced
		// as observed metadata when the naming matches.
		if _, isColorAlias := faceColorAliases[name]; isColorAlias {
			schema.Observed.FaceColor = true
		}
		schema.FaceProps = append(schema.FaceProps, PropertyInfo{Role: RoleCustom, ValueType: vt, Name: name})
		schema.Observed.Custom = true
	default:
		diag.Warn("property %q outside vertex/face element ignored", name)
	}
	return nil
}

// autoDetectTypeAndName implements spec.md §4.2/§9's "either order is
// legal in the wild" permissiveness: exactly one of a, b must be a
// known type token.
func autoDetectTypeAndName(a, b string) (vt ValueType, name string, ok bool) {
	ta, tb := ParseValueType(a), ParseValueType(b)
	switch {
	case ta != Unsupported && tb == Unsupported:
		return ta, b, true
	case tb != Unsupported && ta == Unsupported:
		return tb, a, true
	case ta != Unsupported && tb != Unsupported:
		// Both tokens happen to be valid type names; the second
		// position is still the conventional name slot.
		return ta, b, true
	default:
		return Unsupported, "", false
	}
}

func addVertexProperty(schema *Schema, name string, vt ValueType, diag Diagnostics) {
	role, known := vertexRoleAliases[name]
	binary := schema.Format != FormatAscii

	if !known {
		if binary {
			diag.Warn("vertex custom property %q demoted (unsupported in binary mode)", name)
			schema.VertexProps = append(schema.VertexProps, PropertyInfo{Role: RoleUnsupported, ValueType: vt, Name: name})
			return
		}
		schema.VertexProps = append(schema.VertexProps, PropertyInfo{Role: RoleCustom, ValueType: vt, Name: name})
		schema.Observed.Custom = true
		return
	}

	switch role {
	case RoleXCoord, RoleYCoord, RoleZCoord:
		schema.VertexDim++
	case RoleXNorm, RoleYNorm, RoleZNorm:
		schema.Observed.VertexNormal = true
	case RoleTexX, RoleTexY:
		schema.Observed.VertexTexCoord = true
	case RoleColorRed, RoleColorGreen, RoleColorBlue:
		schema.Observed.VertexColor = true
		if vt.IsFloat() {
			schema.Observed.ColorFloat = true
		}
	case RoleColorAlpha:
		schema.Observed.VertexColor = true
		schema.Observed.ColorAlpha = true
		if vt.IsFloat() {
			schema.Observed.ColorFloat = true
		}
	}
	schema.VertexProps = append(schema.VertexProps, PropertyInfo{Role: role, ValueType: vt, Name: name})
}

func addFaceListProperty(schema *Schema, name string, entryType, idxType ValueType, binaryFormat bool, diag Diagnostics) error {
	switch name {
	case "vertex_index", "vertex_indices":
		for _, p := range schema.FaceProps {
			if p.Role == RoleVertexIndices {
				diag.Warn("duplicate vertex_indices property ignored")
				return nil
			}
		}
		// spec.md I2 fix-up: vertex_indices declared after any custom
		// face property invalidates those properties.
		if len(schema.FaceProps) > 0 {
			diag.Warn("vertex_indices declared after %d preceding face propert(y/ies); discarding them", len(schema.FaceProps))
			schema.FaceProps = schema.FaceProps[:0]
		}
		schema.FaceProps = append(schema.FaceProps, PropertyInfo{
			Role: RoleVertexIndices, ValueType: entryType, Name: name,
			IsList: true, ListIndexType: idxType,
		})
	case "texcoord":
		// §4.2: the texcoord entry-type must be float; a non-float
		// declaration does not earn the FACE_TEXCOORDS role and falls
		// through to the same treatment as any other unrecognized
		// face list (demoted in binary, custom in ASCII).
		if !entryType.IsFloat() {
			if binaryFormat {
				diag.Warn("face list property %q demoted (texcoord entry type %q is not float)", name, entryType)
				schema.FaceProps = append(schema.FaceProps, PropertyInfo{
					Role: RoleUnsupported, ValueType: entryType, Name: name,
					IsList: true, ListIndexType: idxType,
				})
				return nil
			}
			diag.Warn("face list property %q treated as custom (texcoord entry type %q is not float)", name, entryType)
			schema.FaceProps = append(schema.FaceProps, PropertyInfo{
				Role: RoleCustom, ValueType: entryType, Name: name,
				IsList: true, ListIndexType: idxType,
			})
			schema.Observed.Custom = true
			return nil
		}
		schema.Observed.FaceTexCoord = true
		schema.FaceProps = append(schema.FaceProps, PropertyInfo{
			Role: RoleFaceTexcoords, ValueType: entryType, Name: name,
			IsList: true, ListIndexType: idxType,
		})
	default:
		if binaryFormat {
			diag.Warn("face list property %q demoted (unsupported in binary mode)", name)
			schema.FaceProps = append(schema.FaceProps, PropertyInfo{
				Role: RoleUnsupported, ValueType: entryType, Name: name,
				IsList: true, ListIndexType: idxType,
			})
			return nil
		}
		schema.FaceProps = append(schema.FaceProps, PropertyInfo{
			Role: RoleCustom, ValueType: entryType, Name: name,
			IsList: true, ListIndexType: idxType,
		})
		schema.Observed.Custom = true
	}
	return nil
}
