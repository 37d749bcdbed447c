package alerts

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sawpanic/sentirun/internal/scanner"
)

// Priority buckets opportunities by conviction
func Priority(opp scanner.Opportunity) string {
	switch {
	case opp.ConvictionScore >= 8:
		return "HIGH"
	case opp.ConvictionScore >= 6:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Emitter writes scan results as action-oriented JSON
type Emitter struct {
	now func() time.Time
}

// NewEmitter creates an emitter
func NewEmitter() *Emitter {
	return &Emitter{now: time.Now}
}

// EmitAlertsJSON writes opportunities with their priority to filePath
func (e *Emitter) EmitAlertsJSON(filePath string, opps []scanner.Opportunity) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create alerts JSON file: %w", err)
	}
	defer file.Close()

	alertsData := map[string]interface{}{
		"timestamp": e.now().UTC(),
		"alert_summary": map[string]interface{}{
			"total_alerts":    len(opps),
			"high_priority":   countByPriority(opps, "HIGH"),
			"medium_priority": countByPriority(opps, "MEDIUM"),
			"low_priority":    countByPriority(opps, "LOW"),
		},
		"alerts": enrich(opps),
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(alertsData); err != nil {
		return fmt.Errorf("failed to encode alerts JSON: %w", err)
	}
	return nil
}

func enrich(opps []scanner.Opportunity) []map[string]interface{} {
	enriched := make([]map[string]interface{}, len(opps))
	for i, opp := range opps {
		enriched[i] = map[string]interface{}{
			"symbol":     opp.Symbol,
			"priority":   Priority(opp),
			"conviction": opp.ConvictionScore,
			"signal":     opp.SignalType,
			"reason":     opp.ReasonText,
			"trade": map[string]interface{}{
				"entry":          opp.EntryPrice,
				"stop":           opp.StopLoss,
				"targets":        []float64{opp.Target1, opp.Target2, opp.Target3},
				"units":          opp.PositionSizeUnits,
				"position_value": opp.PositionValue,
				"risk_reward":    opp.RiskRewardRatio,
			},
		}
	}
	return enriched
}

func countByPriority(opps []scanner.Opportunity, priority string) int {
	count := 0
	for _, opp := range opps {
		if Priority(opp) == priority {
			count++
		}
	}
	return count
}
