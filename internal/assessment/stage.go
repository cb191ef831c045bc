package assessment

// Stage is the named phase of an intake conversation.
type Stage string

const (
	StageInitial           Stage = "initial"
	StageSymptomCollection Stage = "symptom_collection"
	StageMedicalHistory    Stage = "medical_history"
	StageRiskAssessment    Stage = "risk_assessment"
	StageReadyForSummary   Stage = "ready_for_summary"
	StageComplete          Stage = "complete"
)

var stageOrder = []Stage{
	StageInitial,
	StageSymptomCollection,
	StageMedicalHistory,
	StageRiskAssessment,
	StageReadyForSummary,
	StageComplete,
}

// Rank orders stages; unknown stages rank as initial.
func (s Stage) Rank() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return 0
}

// IsGathering reports whether s is one of the information-gathering
// sub-stages.
func (s Stage) IsGathering() bool {
	switch s {
	case StageSymptomCollection, StageMedicalHistory, StageRiskAssessment:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Stage) IsTerminal() bool {
	return s == StageComplete
}

// DetermineStage maps a score onto a stage using the configured thresholds.
func DetermineStage(score int, t StageThresholds) Stage {
	stage := StageInitial
	for i, threshold := range t.Ordered() {
		if score >= threshold {
			stage = stageOrder[i+1]
		}
	}
	return stage
}

// Advance returns the later of current and next so a session's stage never
// moves backwards. Once complete, it stays complete.
func Advance(current, next Stage) Stage {
	if current.IsTerminal() || current.Rank() >= next.Rank() {
		return current
	}
	return next
}

// Completion reasons.
const (
	ReasonScoreThreshold = "score_threshold"
	ReasonTurnCeiling    = "turn_ceiling"
	ReasonManual         = "manual"
)

// Progress is the derived assessment state recomputed every turn.
type Progress struct {
	Stage              Stage    `json:"assessment_stage"`
	CompletionScore    int      `json:"completion_score"`
	MissingAreas       []string `json:"missing_areas"`
	AssessmentComplete bool     `json:"assessment_complete"`
	CompletionReason   string   `json:"completion_reason,omitempty"`
}

// Evaluate scores the collected data and derives stage and completion.
func Evaluate(data CollectedData, transcriptLen int, uc UserContext, r Rules) Progress {
	score := Score(data, transcriptLen, uc, r)
	p := Progress{
		Stage:           DetermineStage(score, r.Stages),
		CompletionScore: score,
		MissingAreas:    data.Missing(),
	}
	if p.MissingAreas == nil {
		p.MissingAreas = []string{}
	}
	if IsComplete(score, r) {
		p.AssessmentComplete = true
		p.CompletionReason = ReasonScoreThreshold
	}
	return p
}
