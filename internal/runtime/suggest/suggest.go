// Package suggest produces "did you mean" hints for declaration diagnostics.
package suggest

// maxDistance bounds how different a candidate may be and still be suggested.
const maxDistance = 2

// Closest returns the option nearest to input, or "" when none is within
// maxDistance edits. Ties keep the earliest option.
func Closest(input string, options []string) string {
	best := ""
	bestDistance := maxDistance + 1
	for _, option := range options {
		if d := Distance(input, option); d < bestDistance {
			best = option
			bestDistance = d
		}
	}
	return best
}

// Distance is the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
