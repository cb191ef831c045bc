package assessment

// Score rates intake thoroughness on [0, 100]. It is the sum of a base
// derived from transcript length and a content score from touched
// categories, each capped. Touching more categories or lengthening the
// transcript never lowers the result as long as weights are non-negative.
func Score(data CollectedData, transcriptLen int, uc UserContext, r Rules) int {
	base := 0
	if transcriptLen > 0 {
		base = min(transcriptLen*r.PointsPerTurn, r.BaseCap)
	}

	content := contentScore(data, uc, r.Weights)
	content = min(content, r.ContentCap)

	return clamp(base+content, 0, 100)
}

func contentScore(data CollectedData, uc UserContext, w Weights) int {
	total := 0
	switch n := len(data.Symptoms); {
	case n >= 3:
		total += w.ThreeSymptoms
	case n == 2:
		total += w.TwoSymptoms
	case n == 1:
		total += w.OneSymptom
	}

	for c, weight := range w.categoryWeights() {
		if data.Touched(c) {
			total += weight
		}
	}

	// Profile facts only sharpen an intake that has started.
	if total > 0 && (uc.Age > 0 || len(uc.MedicalHistory) > 0) {
		total += w.UserContext
	}
	return total
}

// IsComplete is the completion gate. It is independent of stage.
func IsComplete(score int, r Rules) bool {
	return score >= r.CompletionThreshold
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
