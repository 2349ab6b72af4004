package council

import (
	"errors"
	"fmt"
	"strings"
)

// MaxCouncilSize bounds a single deliberation round. Labels are single
// letters A-Z, so a larger council cannot be anonymized.
const MaxCouncilSize = 26

// ErrCouncilTooLarge is returned when a round has more members than labels.
var ErrCouncilTooLarge = errors.New("council exceeds 26 models")

// AssignLabels gives each result a single-letter label in input order and
// returns the labels alongside the "Response X" -> model mapping. The
// mapping is rebuilt per round and never reused across deliberations.
func AssignLabels(results []Stage1Result) ([]string, map[string]string, error) {
	if len(results) > MaxCouncilSize {
		return nil, nil, ErrCouncilTooLarge
	}

	labels := make([]string, len(results))
	labelToModel := make(map[string]string, len(results))
	for i, result := range results {
		label := string(rune('A' + i))
		labels[i] = label
		labelToModel["Response "+label] = result.Model
	}
	return labels, labelToModel, nil
}

// labeledResponsesBlock concatenates "Response X:" blocks in label order
// for embedding into the ranking prompt.
func labeledResponsesBlock(results []Stage1Result, labels []string) string {
	var b strings.Builder
	for i, result := range results {
		b.WriteString(fmt.Sprintf("Response %s:\n%s\n\n", labels[i], result.Response))
	}
	return b.String()
}
