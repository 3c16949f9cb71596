package patrol

import (
	"fmt"

	"github.com/tradefork/engine/pkg/models"
)

// Anomaly severities
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// Anomaly detection thresholds, percent
const (
	priceAnomalyPct    = 10
	priceHighPct       = 20
	fundingExtremeRate = 0.05
	oiSurgePct         = 15
)

// Anomaly is one unusual reading found in a user's base streams
type Anomaly struct {
	Type     string
	Symbol   string
	Detail   string
	Severity string
}

// DetectAnomaly inspects one stream value for an unusual reading,
// nil when the value is ordinary
func DetectAnomaly(streamType, symbol string, value models.JSONMap) *Anomaly {
	switch streamType {
	case models.StreamPrice:
		change, ok := value.Float("change_24h_pct")
		if !ok || change < priceAnomalyPct && change > -priceAnomalyPct {
			return nil
		}
		direction := "급등"
		if change < 0 {
			direction = "급락"
		}
		severity := SeverityMedium
		if change >= priceHighPct || change <= -priceHighPct {
			severity = SeverityHigh
		}
		return &Anomaly{
			Type:     "price_" + direction,
			Symbol:   symbol,
			Detail:   fmt.Sprintf("%s 24h %+.1f%%", symbol, change),
			Severity: severity,
		}

	case models.StreamFunding:
		rate, ok := value.Float("rate")
		if !ok || rate < fundingExtremeRate && rate > -fundingExtremeRate {
			return nil
		}
		return &Anomaly{
			Type:     "funding_extreme",
			Symbol:   symbol,
			Detail:   fmt.Sprintf("%s 펀딩비 %.2f%%", symbol, rate*100),
			Severity: SeverityHigh,
		}

	case models.StreamOI:
		change, ok := value.Float("change_pct")
		if !ok || change < oiSurgePct && change > -oiSurgePct {
			return nil
		}
		return &Anomaly{
			Type:     "oi_surge",
			Symbol:   symbol,
			Detail:   fmt.Sprintf("%s OI %+.1f%%", symbol, change),
			Severity: SeverityMedium,
		}
	}
	return nil
}
