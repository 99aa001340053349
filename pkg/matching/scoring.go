package matching

import "strings"

// Scorer provides string comparison algorithms
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// SimilarText returns the percentage of characters two strings share,
// ignoring case. The longest common substring is counted, then the parts to
// its left and to its right are compared recursively:
// 200 * matched / (len(a) + len(b)). Lengths are in bytes.
func (s *Scorer) SimilarText(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if len(a)+len(b) == 0 {
		return 0
	}
	return float64(commonChars(a, b)*200) / float64(len(a)+len(b))
}

func commonChars(a, b string) int {
	posA, posB, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}

	sum := length
	if posA > 0 && posB > 0 {
		sum += commonChars(a[:posA], b[:posB])
	}
	if posA+length < len(a) && posB+length < len(b) {
		sum += commonChars(a[posA+length:], b[posB+length:])
	}
	return sum
}

// longestCommonSubstring returns the first longest run shared by a and b,
// scanning a then b from the left.
func longestCommonSubstring(a, b string) (posA, posB, length int) {
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			l := 0
			for i+l < len(a) && j+l < len(b) && a[i+l] == b[j+l] {
				l++
			}
			if l > length {
				posA, posB, length = i, j, l
			}
		}
	}
	return posA, posB, length
}
