package homepulse

import "fmt"

// TrendIndicator is a render-ready descriptor for a short-term trend. It is
// a pure mapping over the computed trend; presentation layers consume it
// without further computation.
type TrendIndicator struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Text  string `json:"text"`
}

// PatternAlert is a render-ready descriptor for a pattern classification.
type PatternAlert struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Text  string `json:"text"`
}

// Indicator derives a trend indicator from this entity's short-term trend.
// Nil trend data or a missing short-term result maps to a neutral indicator.
func (td *TrendData) Indicator() TrendIndicator {
	if td == nil || td.ShortTerm == nil {
		return TrendIndicator{Icon: "mdi:minus", Color: "#9e9e9e", Text: ""}
	}
	st := td.ShortTerm
	switch st.Direction {
	case TrendUp:
		return TrendIndicator{
			Icon:  "mdi:trending-up",
			Color: confidenceColor(st.Confidence, "#e53935", "#ef9a9a"),
			Text:  fmt.Sprintf("+%.1f%%", st.ChangePercent),
		}
	case TrendDown:
		return TrendIndicator{
			Icon:  "mdi:trending-down",
			Color: confidenceColor(st.Confidence, "#1e88e5", "#90caf9"),
			Text:  fmt.Sprintf("%.1f%%", st.ChangePercent),
		}
	default:
		return TrendIndicator{Icon: "mdi:trending-neutral", Color: "#9e9e9e", Text: "stable"}
	}
}

// Alert derives a pattern alert descriptor. Normal patterns and nil data map
// to an empty alert, which renders as "no indicator".
func (td *TrendData) Alert() PatternAlert {
	if td == nil || td.Pattern == nil || td.Pattern.Type == PatternNormal {
		return PatternAlert{}
	}
	p := td.Pattern
	color := "#fb8c00"
	if p.Severity == SeverityHigh {
		color = "#e53935"
	}
	icon := "mdi:alert-circle-outline"
	switch p.Type {
	case PatternMoreVolatile:
		icon = "mdi:chart-timeline-variant"
	case PatternMoreStable:
		icon = "mdi:chart-line"
	}
	return PatternAlert{Icon: icon, Color: color, Text: p.Description}
}

// confidenceColor picks the strong color for high confidence and the muted
// one otherwise.
func confidenceColor(c Confidence, strong, muted string) string {
	if c == ConfidenceHigh {
		return strong
	}
	return muted
}
