// Package assessment holds the deterministic parts of the intake engine:
// keyword extraction, completion scoring, stage transitions and follow-up
// question selection. Nothing in this package performs I/O.
package assessment

import (
	"slices"
	"strings"
)

// Category names a bucket of collected facts.
type Category string

const (
	CategorySymptoms             Category = "symptoms"
	CategorySeverity             Category = "severity_levels"
	CategoryDuration             Category = "duration"
	CategoryLocation             Category = "location"
	CategoryFrequency            Category = "frequency"
	CategoryTriggers             Category = "triggers"
	CategoryMedicalHistory       Category = "medical_history"
	CategoryMedications          Category = "medications"
	CategoryAllergies            Category = "allergies"
	CategorySurgeries            Category = "surgeries"
	CategoryFamilyHistory        Category = "family_history"
	CategoryRiskFactors          Category = "risk_factors"
	CategoryLifestyleFactors     Category = "lifestyle_factors"
	CategoryOccupationalFactors  Category = "occupational_factors"
	CategoryEnvironmentalFactors Category = "environmental_factors"
	CategoryHearingConcerns      Category = "hearing_concerns"
	CategoryImpactAssessment     Category = "impact_assessment"
	CategoryTreatmentHistory     Category = "treatment_history"
)

// KeyAreas are the categories a thorough intake is expected to cover. Missing
// areas are reported from this list in this order.
var KeyAreas = []Category{
	CategorySymptoms,
	CategorySeverity,
	CategoryDuration,
	CategoryMedicalHistory,
	CategoryMedications,
	CategoryFamilyHistory,
	CategoryRiskFactors,
	CategoryHearingConcerns,
	CategoryImpactAssessment,
}

// Categories lists every category, key areas first, in the order the
// advisor and reports walk them.
var Categories = []Category{
	CategorySymptoms,
	CategorySeverity,
	CategoryDuration,
	CategoryMedicalHistory,
	CategoryMedications,
	CategoryFamilyHistory,
	CategoryRiskFactors,
	CategoryHearingConcerns,
	CategoryImpactAssessment,
	CategoryTriggers,
	CategoryTreatmentHistory,
	CategoryLocation,
	CategoryFrequency,
	CategoryAllergies,
	CategorySurgeries,
	CategoryLifestyleFactors,
	CategoryOccupationalFactors,
	CategoryEnvironmentalFactors,
}

// CollectedData is the structured evidence mined from patient utterances.
// Values only ever grow within a session; see Merge.
type CollectedData struct {
	Symptoms             []string          `json:"symptoms"`
	SeverityLevels       map[string]string `json:"severity_levels"`
	Duration             string            `json:"duration"`
	Location             string            `json:"location"`
	Frequency            string            `json:"frequency"`
	Triggers             []string          `json:"triggers"`
	MedicalHistory       []string          `json:"medical_history"`
	Medications          []string          `json:"medications"`
	Allergies            []string          `json:"allergies"`
	Surgeries            []string          `json:"surgeries"`
	FamilyHistory        []string          `json:"family_history"`
	RiskFactors          []string          `json:"risk_factors"`
	LifestyleFactors     []string          `json:"lifestyle_factors"`
	OccupationalFactors  []string          `json:"occupational_factors"`
	EnvironmentalFactors []string          `json:"environmental_factors"`
	HearingConcerns      []string          `json:"hearing_concerns"`
	ImpactAssessment     []string          `json:"impact_assessment"`
	TreatmentHistory     []string          `json:"treatment_history"`
}

// lists returns pointers to every list-valued category keyed by name.
func (d *CollectedData) lists() map[Category]*[]string {
	return map[Category]*[]string{
		CategorySymptoms:             &d.Symptoms,
		CategoryTriggers:             &d.Triggers,
		CategoryMedicalHistory:       &d.MedicalHistory,
		CategoryMedications:          &d.Medications,
		CategoryAllergies:            &d.Allergies,
		CategorySurgeries:            &d.Surgeries,
		CategoryFamilyHistory:        &d.FamilyHistory,
		CategoryRiskFactors:          &d.RiskFactors,
		CategoryLifestyleFactors:     &d.LifestyleFactors,
		CategoryOccupationalFactors:  &d.OccupationalFactors,
		CategoryEnvironmentalFactors: &d.EnvironmentalFactors,
		CategoryHearingConcerns:      &d.HearingConcerns,
		CategoryImpactAssessment:     &d.ImpactAssessment,
		CategoryTreatmentHistory:     &d.TreatmentHistory,
	}
}

// Touched reports whether any evidence exists for the category.
func (d CollectedData) Touched(c Category) bool {
	switch c {
	case CategorySeverity:
		return len(d.SeverityLevels) > 0
	case CategoryDuration:
		return d.Duration != ""
	case CategoryLocation:
		return d.Location != ""
	case CategoryFrequency:
		return d.Frequency != ""
	}
	if l, ok := d.lists()[c]; ok {
		return len(*l) > 0
	}
	return false
}

// TouchedCategories returns every category with evidence, sorted by name.
func (d CollectedData) TouchedCategories() []Category {
	all := []Category{CategorySeverity, CategoryDuration, CategoryLocation, CategoryFrequency}
	for c := range d.lists() {
		all = append(all, c)
	}

	out := make([]Category, 0, len(all))
	for _, c := range all {
		if d.Touched(c) {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// IsEmpty reports whether nothing has been collected yet.
func (d CollectedData) IsEmpty() bool {
	return len(d.TouchedCategories()) == 0
}

// Missing returns the key areas without evidence.
func (d CollectedData) Missing() []string {
	var missing []string
	for _, c := range KeyAreas {
		if !d.Touched(c) {
			missing = append(missing, string(c))
		}
	}
	return missing
}

// Untouched returns every category without evidence, in Categories order.
// Unlike Missing it includes categories outside the key areas, so follow-up
// questions about triggers or past treatment stay reachable.
func (d CollectedData) Untouched() []string {
	var out []string
	for _, c := range Categories {
		if !d.Touched(c) {
			out = append(out, string(c))
		}
	}
	return out
}

// Merge folds other into d without removing anything already known. Lists
// are unioned preserving first-seen order, severity keys are never dropped,
// and scalar fields take other's value only when it is non-empty.
func (d *CollectedData) Merge(other CollectedData) {
	dst := d.lists()
	for c, src := range other.lists() {
		*dst[c] = union(*dst[c], *src)
	}

	if len(other.SeverityLevels) > 0 && d.SeverityLevels == nil {
		d.SeverityLevels = make(map[string]string, len(other.SeverityLevels))
	}
	for k, v := range other.SeverityLevels {
		d.SeverityLevels[k] = v
	}

	if other.Duration != "" {
		d.Duration = other.Duration
	}
	if other.Location != "" {
		d.Location = other.Location
	}
	if other.Frequency != "" {
		d.Frequency = other.Frequency
	}
}

// Clone returns a deep copy.
func (d CollectedData) Clone() CollectedData {
	var out CollectedData
	out.Merge(d)
	return out
}

func union(dst, src []string) []string {
	dst = slices.Clip(dst)
	for _, v := range src {
		v = strings.TrimSpace(v)
		if v == "" || slices.Contains(dst, v) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

// UserContext is the read-only profile snapshot used to personalise prompts
// and reports. The zero value is a valid, empty context.
type UserContext struct {
	UserID         string   `json:"user_id"`
	Name           string   `json:"name,omitempty"`
	Email          string   `json:"email,omitempty"`
	Age            int      `json:"age,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	MedicalHistory []string `json:"medical_history,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

// IsEmpty reports whether the context carries no personal facts.
func (u UserContext) IsEmpty() bool {
	return u.Name == "" && u.Age == 0 && u.Gender == "" && len(u.MedicalHistory) == 0 && u.Notes == ""
}
