package ply

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// Read opens path and decodes it as described by the Caller contract
// in spec.md §6.2. The file handle is scoped to this call: opened on
// entry, closed on every exit path including error.
func Read(path string, imp Importer, opt Options, diag Diagnostics) (bool, Options) {
	diag = diagOrDefault(diag)

	f, err := os.Open(path)
	if err != nil {
		diag.Fatal("opening %s: %v", path, err)
		return false, opt
	}
	defer f.Close()

	return ReadFrom(f, imp, opt, diag)
}

// ReadFrom decodes an already-open stream. Factored out of Read
// because filename I/O is an external collaborator's concern
// (spec.md §1); pkg/loaders goes through Read, which opens the file
// and calls this.
func ReadFrom(r io.Reader, imp Importer, opt Options, diag Diagnostics) (bool, Options) {
	diag = diagOrDefault(diag)

	br := bufio.NewReaderSize(r, 1<<20)

	schema, err := parseHeader(br, diag)
	if err != nil {
		diag.Fatal("parsing header: %v", err)
		return false, opt
	}

	if schema.VertexDim != 3 {
		diag.Fatal("vertex dimension %d: %v", schema.VertexDim, ErrUnsupportedVertexDim)
		return false, opt
	}

	effective := reconcile(opt, schema.Observed)
	imp.Reserve(int(schema.VertexCount), int(schema.VertexCount)*3, int(schema.FaceCount))

	switch schema.Format {
	case FormatAscii:
		ts := newTokenScanner(br)
		err = decodeASCII(ts, schema, imp, effective, diag)
	case FormatBinaryLittleEndian:
		err = decodeBinary(br, binary.LittleEndian, schema, imp, effective, diag)
	case FormatBinaryBigEndian:
		err = decodeBinary(br, binary.BigEndian, schema, imp, effective, diag)
	default:
		err = fmt.Errorf("ply: schema format %d: %w", schema.Format, ErrUnsupportedFormat)
	}
	if err != nil {
		diag.Fatal("decoding payload: %v", err)
		return false, opt
	}

	if schema.Observed.TexFile {
		if name, ok := schema.Comments["TextureFile"]; ok {
			imp.SetTexFile(name)
		}
	}

	return true, effective
}

// reconcile implements spec.md §4.6: the returned Options is the
// intersection of what the file contained and what the caller asked
// for, except Binary/MSB/LSB/ColorFloat/TexFile which always surface
// when observed, and Swap which passes through the caller's request
// as-is.
// The same value also drives which Set* calls the decoder makes, so
// it is computed once, before decoding, rather than twice.
func reconcile(requested, observed Options) Options {
	return Options{
		Binary:         observed.Binary,
		MSB:            observed.MSB,
		LSB:            observed.LSB,
		Swap:           requested.Swap,
		VertexNormal:   requested.VertexNormal && observed.VertexNormal,
		VertexTexCoord: requested.VertexTexCoord && observed.VertexTexCoord,
		VertexColor:    requested.VertexColor && observed.VertexColor,
		ColorAlpha:     requested.ColorAlpha && observed.ColorAlpha,
		ColorFloat:     observed.ColorFloat,
		FaceColor:      requested.FaceColor && observed.FaceColor,
		FaceTexCoord:   requested.FaceTexCoord && observed.FaceTexCoord,
		TexFile:        observed.TexFile,
		Custom:         requested.Custom && observed.Custom,
	}
}
