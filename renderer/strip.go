package renderer

// StripVertexCount is the number of vertices BuildFullImageStrip(w, h) emits.
func StripVertexCount(w, h int) int {
	return 2 * (w + 1) * h
}

// BuildFullImageStrip tessellates the clip-space square into a row-major
// triangle strip of w columns and h rows. Each row emits a bottom and a top
// vertex per column, then two vertices on the top edge (right, then left)
// that carry the strip to the next row through degenerate triangles.
// The result is interleaved (x, y) pairs. w and h must be at least 2.
func BuildFullImageStrip(w, h int) []float32 {
	vertices := make([]float32, 0, 2*StripVertexCount(w, h))
	for b := 0; b < h; b++ {
		y0 := float32(2*b+1-h) / float32(h-1)
		y1 := float32(2*b+3-h) / float32(h-1)
		for a := 0; a < w; a++ {
			x := float32(2*a+1-w) / float32(w-1)
			vertices = append(vertices, x, y0, x, y1)
		}
		vertices = append(vertices, 1, y1, -1, y1)
	}
	return vertices
}
