package ingest

import (
	"github.com/sawpanic/sentirun/internal/persistence"
)

// DefaultConfidence is reported when no scored posts exist in the window
const DefaultConfidence = 0.3

// WeightedSentiment folds per-source averages into one count-weighted polarity
// and confidence. Sources with no posts are ignored; with no data at all the
// polarity is 0 and the confidence DefaultConfidence.
func WeightedSentiment(rows []persistence.SourceAggregate) (polarity, confidence float64, total int) {
	var polSum, confSum float64
	for _, row := range rows {
		if row.Count <= 0 {
			continue
		}
		polSum += row.AvgPolarity * float64(row.Count)
		confSum += row.AvgConfidence * float64(row.Count)
		total += row.Count
	}
	if total == 0 {
		return 0, DefaultConfidence, 0
	}
	return polSum / float64(total), confSum / float64(total), total
}
