// Package complexity scores method bodies with a branch-counting
// cyclomatic approximation and maps scores onto review bands.
package complexity

import "regexp"

// Band buckets a score for reporting and prioritization.
type Band string

const (
	BandLow      Band = "low"       // 1-3
	BandMedium   Band = "medium"    // 4-7
	BandHigh     Band = "high"      // 8-12
	BandVeryHigh Band = "very_high" // 13+
)

var branchRe = regexp.MustCompile(`\b(if|for|while|case|catch)\b|&&|\|\|`)

// Score computes 1 + the number of branch points in a method body.
// Comment and literal text is blanked first so keywords inside strings
// do not count. An empty body scores the baseline 1.
func Score(body string) int {
	return 1 + len(branchRe.FindAllString(blank(body), -1))
}

// BandFor maps a score to its band.
func BandFor(score int) Band {
	switch {
	case score <= 3:
		return BandLow
	case score <= 7:
		return BandMedium
	case score <= 12:
		return BandHigh
	default:
		return BandVeryHigh
	}
}

// blank replaces string/char literal contents and comments with spaces.
func blank(s string) string {
	out := []byte(s)
	i := 0
	for i < len(out) {
		switch {
		case out[i] == '"' || out[i] == '\'':
			quote := out[i]
			j := i + 1
			for j < len(out) && out[j] != quote && out[j] != '\n' {
				if out[j] == '\\' && j+1 < len(out) {
					out[j] = ' '
					j++
				}
				out[j] = ' '
				j++
			}
			if j < len(out) && out[j] == quote {
				j++
			}
			i = j
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '/':
			for i < len(out) && out[i] != '\n' {
				out[i] = ' '
				i++
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			out[i], out[i+1] = ' ', ' '
			i += 2
			for i < len(out) {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i += 2
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
				i++
			}
		default:
			i++
		}
	}
	return string(out)
}
