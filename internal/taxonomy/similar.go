package taxonomy

// similarText returns the number of matching bytes between a and b and the
// similarity percentage, counted like PHP's similar_text: the longest common
// substring plus, recursively, the matches left and right of it.
func similarText(a, b string) (int, float64) {
	if len(a)+len(b) == 0 {
		return 0, 0
	}
	sim := similarBytes(a, b)
	return sim, float64(sim*2) * 100 / float64(len(a)+len(b))
}

func similarBytes(a, b string) int {
	posA, posB, best := 0, 0, 0
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			k := 0
			for i+k < len(a) && j+k < len(b) && a[i+k] == b[j+k] {
				k++
			}
			if k > best {
				posA, posB, best = i, j, k
			}
		}
	}
	if best == 0 {
		return 0
	}
	return best + similarBytes(a[:posA], b[:posB]) + similarBytes(a[posA+best:], b[posB+best:])
}
