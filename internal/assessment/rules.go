package assessment

// Weights are the content points awarded per touched category.
type Weights struct {
	OneSymptom           int `yaml:"one_symptom"`
	TwoSymptoms          int `yaml:"two_symptoms"`
	ThreeSymptoms        int `yaml:"three_symptoms"`
	Severity             int `yaml:"severity"`
	Duration             int `yaml:"duration"`
	Location             int `yaml:"location"`
	Frequency            int `yaml:"frequency"`
	Triggers             int `yaml:"triggers"`
	MedicalHistory       int `yaml:"medical_history"`
	Medications          int `yaml:"medications"`
	Allergies            int `yaml:"allergies"`
	Surgeries            int `yaml:"surgeries"`
	FamilyHistory        int `yaml:"family_history"`
	RiskFactors          int `yaml:"risk_factors"`
	LifestyleFactors     int `yaml:"lifestyle_factors"`
	OccupationalFactors  int `yaml:"occupational_factors"`
	EnvironmentalFactors int `yaml:"environmental_factors"`
	HearingConcerns      int `yaml:"hearing_concerns"`
	ImpactAssessment     int `yaml:"impact_assessment"`
	TreatmentHistory     int `yaml:"treatment_history"`
	UserContext          int `yaml:"user_context"`
}

// StageThresholds are the minimum scores at which each stage begins.
type StageThresholds struct {
	SymptomCollection int `yaml:"symptom_collection"`
	MedicalHistory    int `yaml:"medical_history"`
	RiskAssessment    int `yaml:"risk_assessment"`
	ReadyForSummary   int `yaml:"ready_for_summary"`
	Complete          int `yaml:"complete"`
}

// Ordered returns the thresholds from lowest stage to highest.
func (t StageThresholds) Ordered() []int {
	return []int{t.SymptomCollection, t.MedicalHistory, t.RiskAssessment, t.ReadyForSummary, t.Complete}
}

// Rules gathers every tunable of the scoring engine, stage machine and
// advisor.
type Rules struct {
	PointsPerTurn       int             `yaml:"points_per_turn"`
	BaseCap             int             `yaml:"base_cap"`
	ContentCap          int             `yaml:"content_cap"`
	Weights             Weights         `yaml:"weights"`
	Stages              StageThresholds `yaml:"stages"`
	CompletionThreshold int             `yaml:"completion_threshold"`
	AdvisorMidScore     int             `yaml:"advisor_mid_score"`
	AdvisorHighScore    int             `yaml:"advisor_high_score"`
}

// DefaultRules returns the canonical weights and thresholds.
func DefaultRules() Rules {
	return Rules{
		PointsPerTurn: 3,
		BaseCap:       30,
		ContentCap:    70,
		Weights: Weights{
			OneSymptom:           12,
			TwoSymptoms:          18,
			ThreeSymptoms:        25,
			Severity:             5,
			Duration:             5,
			Location:             3,
			Frequency:            3,
			Triggers:             4,
			MedicalHistory:       15,
			Medications:          8,
			Allergies:            3,
			Surgeries:            3,
			FamilyHistory:        10,
			RiskFactors:          10,
			LifestyleFactors:     4,
			OccupationalFactors:  4,
			EnvironmentalFactors: 3,
			HearingConcerns:      8,
			ImpactAssessment:     8,
			TreatmentHistory:     4,
			UserContext:          5,
		},
		Stages: StageThresholds{
			SymptomCollection: 25,
			MedicalHistory:    50,
			RiskAssessment:    65,
			ReadyForSummary:   75,
			Complete:          85,
		},
		CompletionThreshold: 75,
		AdvisorMidScore:     40,
		AdvisorHighScore:    70,
	}
}

// categoryWeights pairs categories with their fixed weight. Symptoms are
// scored separately by depth.
func (w Weights) categoryWeights() map[Category]int {
	return map[Category]int{
		CategorySeverity:             w.Severity,
		CategoryDuration:             w.Duration,
		CategoryLocation:             w.Location,
		CategoryFrequency:            w.Frequency,
		CategoryTriggers:             w.Triggers,
		CategoryMedicalHistory:       w.MedicalHistory,
		CategoryMedications:          w.Medications,
		CategoryAllergies:            w.Allergies,
		CategorySurgeries:            w.Surgeries,
		CategoryFamilyHistory:        w.FamilyHistory,
		CategoryRiskFactors:          w.RiskFactors,
		CategoryLifestyleFactors:     w.LifestyleFactors,
		CategoryOccupationalFactors:  w.OccupationalFactors,
		CategoryEnvironmentalFactors: w.EnvironmentalFactors,
		CategoryHearingConcerns:      w.HearingConcerns,
		CategoryImpactAssessment:     w.ImpactAssessment,
		CategoryTreatmentHistory:     w.TreatmentHistory,
	}
}

// All returns every weight, for validation.
func (w Weights) All() map[string]int {
	out := map[string]int{
		"one_symptom":    w.OneSymptom,
		"two_symptoms":   w.TwoSymptoms,
		"three_symptoms": w.ThreeSymptoms,
		"user_context":   w.UserContext,
	}
	for c, v := range w.categoryWeights() {
		out[string(c)] = v
	}
	return out
}
