package processing

import "strings"

// descriptionSimilarity returns a similarity ratio in [0, 1] between two
// descriptions after lowercasing and trimming. Exact matches short-circuit
// to 1.0; otherwise the ratio is 2*M/T where M is the total length of
// recursively matched common blocks and T the combined length.
func descriptionSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))

	if a == b {
		return 1.0
	}

	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}

	matched := matchingRunes(ra, rb)
	return 2.0 * float64(matched) / float64(total)
}

// matchingRunes counts matching characters by finding the longest common
// block and recursing on the pieces to its left and right.
func matchingRunes(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ai, bi, size := longestCommonBlock(a, b)
	if size == 0 {
		return 0
	}

	return size +
		matchingRunes(a[:ai], b[:bi]) +
		matchingRunes(a[ai+size:], b[bi+size:])
}

// longestCommonBlock finds the longest common contiguous block between a
// and b, returning its start in each and its length. Earlier positions win
// ties, keeping the result deterministic.
func longestCommonBlock(a, b []rune) (int, int, int) {
	bestA, bestB, bestSize := 0, 0, 0

	// lengths[j] holds the length of the common suffix ending at a[i], b[j-1]
	// from the previous row.
	lengths := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		prev := 0
		for j := 0; j < len(b); j++ {
			cur := lengths[j+1]
			if a[i] == b[j] {
				length := prev + 1
				lengths[j+1] = length
				if length > bestSize {
					bestA = i - length + 1
					bestB = j - length + 1
					bestSize = length
				}
			} else {
				lengths[j+1] = 0
			}
			prev = cur
		}
	}

	return bestA, bestB, bestSize
}
