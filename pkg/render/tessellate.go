package render

import (
	"math"
	"sort"

	"github.com/teslashibe/go-faceoverlay/pkg/inference"
)

type triangle struct {
	a, b, c    int
	cx, cy, r2 float64
}

type edge struct{ a, b int }

func newEdge(a, b int) edge {
	if a > b {
		a, b = b, a
	}
	return edge{a, b}
}

// Tessellate triangulates landmarks in the image plane (Delaunay, using
// Bowyer-Watson insertion) and returns every triangle edge once, ordered by
// index. Non-finite and duplicate landmarks are left out.
func Tessellate(landmarks inference.LandmarkSet) Topology {
	n := len(landmarks)
	if n < 3 {
		return nil
	}

	pts := make([][2]float64, n, n+3)
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	usable := 0
	for i, lm := range landmarks {
		pts[i] = [2]float64{lm.X, lm.Y}
		if !finite(lm.X) || !finite(lm.Y) {
			continue
		}
		usable++
		minX, maxX = math.Min(minX, lm.X), math.Max(maxX, lm.X)
		minY, maxY = math.Min(minY, lm.Y), math.Max(maxY, lm.Y)
	}
	if usable < 3 {
		return nil
	}

	// Super triangle enclosing every point; its vertices are n, n+1, n+2.
	d := math.Max(maxX-minX, maxY-minY)
	if d == 0 {
		return nil
	}
	mx, my := (minX+maxX)/2, (minY+maxY)/2
	pts = append(pts,
		[2]float64{mx - 20*d, my - d},
		[2]float64{mx, my + 20*d},
		[2]float64{mx + 20*d, my - d},
	)

	tris := make([]triangle, 0, 2*n+1)
	if t, ok := circumscribe(pts, n, n+1, n+2); ok {
		tris = append(tris, t)
	}

	boundary := make(map[edge]int)
	for i := 0; i < n; i++ {
		p := pts[i]
		if !finite(p[0]) || !finite(p[1]) {
			continue
		}

		clear(boundary)
		kept := tris[:0]
		var bad []triangle
		for _, t := range tris {
			dx, dy := p[0]-t.cx, p[1]-t.cy
			if dx*dx+dy*dy < t.r2 {
				bad = append(bad, t)
				continue
			}
			kept = append(kept, t)
		}
		tris = kept
		if len(bad) == 0 {
			continue
		}

		for _, t := range bad {
			boundary[newEdge(t.a, t.b)]++
			boundary[newEdge(t.b, t.c)]++
			boundary[newEdge(t.c, t.a)]++
		}
		for e, count := range boundary {
			if count != 1 {
				continue
			}
			if t, ok := circumscribe(pts, e.a, e.b, i); ok {
				tris = append(tris, t)
			}
		}
	}

	seen := make(map[edge]struct{}, 3*len(tris))
	for _, t := range tris {
		if t.a >= n || t.b >= n || t.c >= n {
			continue
		}
		seen[newEdge(t.a, t.b)] = struct{}{}
		seen[newEdge(t.b, t.c)] = struct{}{}
		seen[newEdge(t.c, t.a)] = struct{}{}
	}

	out := make(Topology, 0, len(seen))
	for e := range seen {
		out = append(out, Connection{From: e.a, To: e.b})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// circumscribe builds the triangle a, b, c with its circumcircle. It fails
// for collinear points.
func circumscribe(pts [][2]float64, a, b, c int) (triangle, bool) {
	ax, ay := pts[a][0], pts[a][1]
	bx, by := pts[b][0], pts[b][1]
	cx, cy := pts[c][0], pts[c][1]

	det := 2 * (ax*(by-cy) + bx*(cy-ay) + cx*(ay-by))
	if det == 0 {
		return triangle{}, false
	}
	a2, b2, c2 := ax*ax+ay*ay, bx*bx+by*by, cx*cx+cy*cy
	ux := (a2*(by-cy) + b2*(cy-ay) + c2*(ay-by)) / det
	uy := (a2*(cx-bx) + b2*(ax-cx) + c2*(bx-ax)) / det
	dx, dy := ax-ux, ay-uy
	return triangle{a: a, b: b, c: c, cx: ux, cy: uy, r2: dx*dx + dy*dy}, true
}
