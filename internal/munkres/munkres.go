package munkres

import (
	"errors"
	"math"
)

var ErrBadMatrix = errors.New("cost matrix must be square and non-empty")

// Solve computes a minimum-cost one-to-one assignment over an n x n cost
// matrix and returns the column assigned to each row. Uses the shortest
// augmenting path formulation of the Hungarian algorithm, O(n^3).
func Solve(cost [][]float64) ([]int, error) {
	n := len(cost)
	if n == 0 {
		return nil, ErrBadMatrix
	}
	for _, row := range cost {
		if len(row) != n {
			return nil, ErrBadMatrix
		}
	}

	// 1-based potentials and matching. p[j] holds the row matched to
	// column j, column 0 is the virtual start of each augmenting path.
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}

		for {
			used[j0] = true
			i0 := p[j0]
			delta := math.Inf(1)
			j1 := 0

			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Walk back along the path, flipping the matching.
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assignment := make([]int, n)
	for j := 1; j <= n; j++ {
		assignment[p[j]-1] = j - 1
	}
	return assignment, nil
}

// Cost sums the matrix entries selected by an assignment from Solve.
func Cost(cost [][]float64, assignment []int) float64 {
	total := 0.0
	for i, j := range assignment {
		total += cost[i][j]
	}
	return total
}
