package domain

// Outcome is the terminal classification of a candidate evaluation.
type Outcome string

const (
	// OutcomeAbort is forced by a hard volatility gate, independent of confidence.
	OutcomeAbort Outcome = "ABORT"
	// OutcomeReject covers failed gates, revoked permission, capacity and risk rejections.
	OutcomeReject Outcome = "REJECT"
	// OutcomeLimitedOK admits the candidate against the working ceiling only.
	OutcomeLimitedOK Outcome = "LIMITED_OK"
	// OutcomeExpandBin admits the candidate and allows the sleeve to expand.
	OutcomeExpandBin Outcome = "EXPAND_BIN"
	// OutcomeFullOK admits the candidate at the full confidence tier.
	OutcomeFullOK Outcome = "FULL_OK"
)

// Admissible reports whether the outcome permits capital commitment.
func (o Outcome) Admissible() bool {
	switch o {
	case OutcomeLimitedOK, OutcomeExpandBin, OutcomeFullOK:
		return true
	default:
		return false
	}
}
