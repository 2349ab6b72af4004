package council

import (
	"regexp"
	"strings"
)

// rankingMarker is the literal line the ranking prompt instructs models to
// emit before their final ordered list.
const rankingMarker = "FINAL RANKING:"

var (
	numberedPattern = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
	labelPattern    = regexp.MustCompile(`Response [A-Z]`)
)

// ParseRanking extracts an ordered sequence of "Response X" tokens from
// free-form ranking text. With a FINAL RANKING: marker present, only the
// text after its first occurrence is searched, preferring a numbered list
// over bare labels. Without a marker the whole text is scanned for bare
// labels. An unmatchable text yields an empty sequence, not an error.
// Pure function.
func ParseRanking(text string) []string {
	if _, tail, found := strings.Cut(text, rankingMarker); found {
		if numbered := numberedPattern.FindAllString(tail, -1); len(numbered) > 0 {
			results := make([]string, 0, len(numbered))
			for _, match := range numbered {
				if label := labelPattern.FindString(match); label != "" {
					results = append(results, label)
				}
			}
			return results
		}
		return labelPattern.FindAllString(tail, -1)
	}
	return labelPattern.FindAllString(text, -1)
}
