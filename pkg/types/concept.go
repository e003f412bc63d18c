package types

// SemanticConcept is a unit of confidence-weighted general knowledge.
// Confidence only ever moves towards 1.0: each reinforcement applies a
// diminishing-returns update and the value saturates rather than overflowing.
type SemanticConcept struct {
	Content            string  `json:"content"`
	Confidence         float64 `json:"confidence"`          // In [0.0, 1.0], non-decreasing
	ReinforcementCount int     `json:"reinforcement_count"`
}

// Reinforce applies one reinforcement event with the given gain:
//
//	confidence += (1 - confidence) * gain
//
// The update is monotonically non-decreasing for gain in [0, 1] and
// asymptotically saturates at 1.0. Gain values outside [0, 1] are clamped.
func (c *SemanticConcept) Reinforce(gain float64) {
	if gain < 0 {
		gain = 0
	}
	if gain > 1 {
		gain = 1
	}
	c.Confidence += (1 - c.Confidence) * gain
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	c.ReinforcementCount++
}
