package filters

import (
	"fmt"
	"hash/fnv"
	"time"

	"ares_api/internal/logger"
	"ares_api/internal/models"
)

// PlaceholderSupportResistance is the explicitly-flagged stand-in for real
// support/resistance detection, shared by filters 3 and 4 and the
// orchestrator's support_resistance stage so every consumer sees one
// consistent fallback level set. Used ONLY when no detector is injected;
// every call logs a warning so a wired deployment can never silently run
// on placeholder data.
func PlaceholderSupportResistance(currentPrice float64, evalTime time.Time) *models.SupportResistanceResult {
	logger.Warn("support_resistance: no detector injected, using deterministic placeholder", "evaluation_time", evalTime.Format(time.RFC3339))

	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%d", evalTime.UnixNano())))
	distanceModifier := float64(h.Sum32()%100) / 100.0

	var supportPct, resistancePct float64
	switch {
	case distanceModifier < 0.6: // 60%: plausible distance
		supportPct = 1.0 + distanceModifier*3.0
		resistancePct = 2.0 + distanceModifier*4.0
	case distanceModifier < 0.8: // 20%: too close
		supportPct = 0.2
		resistancePct = 0.5
	default: // 20%: too far
		supportPct = 6.0
		resistancePct = 9.0
	}

	supportPrice := currentPrice * (1.0 - supportPct/100.0)
	resistancePrice := currentPrice * (1.0 + resistancePct/100.0)

	return &models.SupportResistanceResult{
		Status:      models.SubSuccess,
		Supports:    []models.SRLevel{{Price: supportPrice, Strength: 0.8, TouchCount: 3}},
		Resistances: []models.SRLevel{{Price: resistancePrice, Strength: 0.75, TouchCount: 3}},
	}
}
