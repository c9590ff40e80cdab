package scoring

import "doubtdesk/internal/models"

// Component weights and caps of the confidence model.
const (
	baseWeight         = 0.35 // Share of the model's fixed trust assumption
	baseWeightVerified = 0.50 // Shifted weight when the source is verified/human
	contextCap         = 25.0
	selectionBonus     = 12.0
	anyContextBonus    = 8.0
	visualBonus        = 5.0
	formattingWeight   = 0.20 // Scales the 0-100 formatting sub-score into 0-20
	verifiedFlatBonus  = 10.0
)

// Reliability labels.
const (
	LabelHigh     = "High"
	LabelGood     = "Good"
	LabelModerate = "Moderate"
	LabelLow      = "Low"
)

// Input bundles every signal the scorer weighs. BaseConfidence is the fixed
// trust assumption for the answering model on a 0-100 scale;
// FormattingScore is the 0-100 sub-score computed from the answer's markup.
type Input struct {
	BaseConfidence  float64
	Verified        bool // Verified/human source
	HasSelectedText bool
	HasContext      bool
	HasVisual       bool
	ResponseLength  int
	FormattingScore float64
}

// Score computes the 0-100 trust score and its fixed-shape breakdown. It is
// deterministic and side-effect-free; it is the single gate for auto-resolve
// versus pending versus escalation decisions.
func Score(in Input) models.ConfidenceBreakdown {
	weight := baseWeight
	if in.Verified {
		weight = baseWeightVerified
	}

	base := clamp(in.BaseConfidence, 0, 100) * weight
	context := contextBonus(in)
	length := lengthBonus(in.ResponseLength)
	formatting := clamp(in.FormattingScore, 0, 100) * formattingWeight

	verified := 0.0
	if in.Verified {
		verified = verifiedFlatBonus
	}

	total := clamp(base+context+length+formatting+verified, 0, 100)

	return models.ConfidenceBreakdown{
		BaseModel:      base,
		ContextQuality: context,
		ResponseLength: length,
		Formatting:     formatting,
		VerifiedBonus:  verified,
		Total:          total,
		Label:          Label(total),
	}
}

// contextBonus rewards explicit grounding signals, capped so the components
// cannot sum unbounded.
func contextBonus(in Input) float64 {
	bonus := 0.0
	if in.HasSelectedText {
		bonus += selectionBonus
	}
	if in.HasContext {
		bonus += anyContextBonus
	}
	if in.HasVisual {
		bonus += visualBonus
	}
	if bonus > contextCap {
		bonus = contextCap
	}
	return bonus
}

func lengthBonus(length int) float64 {
	switch {
	case length >= 400:
		return 20
	case length >= 200:
		return 15
	case length >= 100:
		return 10
	default:
		return 5
	}
}

// Label maps a total score to its reliability label.
func Label(total float64) string {
	switch {
	case total >= 85:
		return LabelHigh
	case total >= 70:
		return LabelGood
	case total >= 50:
		return LabelModerate
	default:
		return LabelLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
