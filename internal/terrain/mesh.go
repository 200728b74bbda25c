package terrain

import "errors"

// ErrInsufficientGridSize means the normalized grid has fewer than 2x2
// vertices and cannot be triangulated. Callers can tell "no data" apart
// from "valid but flat" terrain.
var ErrInsufficientGridSize = errors.New("grid too small to triangulate")

// Mesh is an indexed triangle mesh in render units: three float32s per
// vertex, three uint32 indices per triangle. Regenerated whole on every
// LOD change, never mutated in place, so a renderer can keep drawing the
// previous frame's mesh while a new one is built.
type Mesh struct {
	Vertices   []float32
	Indices    []uint32
	Decimation int
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int { return len(m.Vertices) / 3 }

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int { return len(m.Indices) / 3 }

// release drops the buffer references so a stale mesh cannot be drawn.
// Only the MeshManager calls this.
func (m *Mesh) release() {
	m.Vertices = nil
	m.Indices = nil
}

// BuildMesh triangulates the terrain subsampled at the given decimation
// factor. Vertices always come from the original normalized grid, never
// from a previously decimated mesh, so repeated LOD switches cannot
// compound resampling error. When the decimation step does not divide the
// grid evenly the mesh simply shrinks; no degenerate triangles are emitted.
func BuildMesh(t *NormalizedTerrain, decimation int) (*Mesh, error) {
	if decimation < 1 {
		decimation = 1
	}
	if t == nil || t.Cols < 2 || t.Rows < 2 {
		return nil, ErrInsufficientGridSize
	}

	cols := (t.Cols + decimation - 1) / decimation
	rows := (t.Rows + decimation - 1) / decimation
	if cols < 2 || rows < 2 {
		return nil, ErrInsufficientGridSize
	}

	mesh := &Mesh{
		Vertices:   make([]float32, 0, cols*rows*3),
		Indices:    make([]uint32, 0, (cols-1)*(rows-1)*6),
		Decimation: decimation,
	}

	for r := 0; r < rows; r++ {
		srcRow := r * decimation
		for c := 0; c < cols; c++ {
			x, y, z := t.Position(srcRow, c*decimation)
			mesh.Vertices = append(mesh.Vertices, x, y, z)
		}
	}

	// Two triangles per quad, counter-clockwise seen from above.
	for r := 0; r < rows-1; r++ {
		for c := 0; c < cols-1; c++ {
			nw := uint32(r*cols + c)
			ne := nw + 1
			sw := uint32((r+1)*cols + c)
			se := sw + 1
			mesh.Indices = append(mesh.Indices, nw, sw, se, nw, se, ne)
		}
	}

	return mesh, nil
}
