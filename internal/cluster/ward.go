package cluster

import "math"

// step is one agglomeration in the dendrogram. Node n+i is created by step i.
type step struct {
	a, b   int
	height float64 // Euclidean, not squared
	size   int
}

func sqDist(a, b []float64) float64 {
	var d float64
	for k := range a {
		diff := a[k] - b[k]
		d += diff * diff
	}
	return d
}

// wardLinkage runs Ward's agglomerative clustering with the Lance-Williams
// update on squared Euclidean distances. It returns n-1 steps with
// non-decreasing heights.
func wardLinkage(points [][]float64) []step {
	n := len(points)
	if n < 2 {
		return nil
	}

	nodes := 2*n - 1
	d := make([][]float64, nodes)
	for i := range d {
		d[i] = make([]float64, nodes)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := sqDist(points[i], points[j])
			d[i][j], d[j][i] = v, v
		}
	}

	size := make([]int, nodes)
	active := make([]bool, nodes)
	for i := 0; i < n; i++ {
		size[i] = 1
		active[i] = true
	}

	steps := make([]step, 0, n-1)
	for s := 0; s < n-1; s++ {
		next := n + s

		bi, bj, best := -1, -1, math.MaxFloat64
		for i := 0; i < next; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < next; j++ {
				if active[j] && d[i][j] < best {
					bi, bj, best = i, j, d[i][j]
				}
			}
		}

		// d(new, k) = ((nk+ni)*d(i,k) + (nk+nj)*d(j,k) - nk*d(i,j)) / (nk+ni+nj)
		ni, nj := float64(size[bi]), float64(size[bj])
		for k := 0; k < next; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			nk := float64(size[k])
			v := ((nk+ni)*d[bi][k] + (nk+nj)*d[bj][k] - nk*best) / (nk + ni + nj)
			d[next][k], d[k][next] = v, v
		}

		active[bi], active[bj], active[next] = false, false, true
		size[next] = size[bi] + size[bj]
		steps = append(steps, step{a: bi, b: bj, height: math.Sqrt(best), size: size[next]})
	}
	return steps
}

// cut applies every step at or below height and returns a label per leaf.
// Labels are numbered in order of first appearance.
func cut(steps []step, n int, height float64) []int {
	parent := make([]int, n+len(steps))
	for i := range parent {
		parent[i] = i
	}
	for s, st := range steps {
		if st.height > height {
			// Heights never decrease, so nothing later applies either.
			break
		}
		node := n + s
		parent[root(parent, st.a)] = node
		parent[root(parent, st.b)] = node
	}

	labels := make([]int, n)
	ids := make(map[int]int)
	for i := 0; i < n; i++ {
		r := root(parent, i)
		id, ok := ids[r]
		if !ok {
			id = len(ids)
			ids[r] = id
		}
		labels[i] = id
	}
	return labels
}

func root(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}
