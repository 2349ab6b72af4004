package council

import (
	"math"
	"sort"
)

// Aggregate converts every model's ranking back into model space and
// computes mean rank positions, ascending (lower is better). Each ranking
// is re-parsed from its raw text so this result can never disagree with
// what ParseRanking reports for the same input. Labels that resolve to no
// model are skipped; models that were never ranked are omitted. Ties keep
// first-seen order.
func Aggregate(stage2Results []Stage2Result, labelToModel map[string]string) []AggregateRanking {
	positions := make(map[string][]int)
	var firstSeen []string

	for _, result := range stage2Results {
		for p, label := range ParseRanking(result.Ranking) {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			if _, seen := positions[model]; !seen {
				firstSeen = append(firstSeen, model)
			}
			positions[model] = append(positions[model], p+1)
		}
	}

	aggregate := make([]AggregateRanking, 0, len(firstSeen))
	for _, model := range firstSeen {
		recorded := positions[model]
		sum := 0
		for _, pos := range recorded {
			sum += pos
		}
		avg := float64(sum) / float64(len(recorded))
		aggregate = append(aggregate, AggregateRanking{
			Model:         model,
			AverageRank:   math.Round(avg*100) / 100,
			RankingsCount: len(recorded),
		})
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		return aggregate[i].AverageRank < aggregate[j].AverageRank
	})
	return aggregate
}
