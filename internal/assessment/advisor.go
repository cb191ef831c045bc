package assessment

import "slices"

// MaxSuggestions bounds the advisor's output.
const MaxSuggestions = 3

// ClosingQuestion is appended when a tier offers fewer than two questions.
const ClosingQuestion = "Is there anything else about your health that you would like to share?"

// OrientingQuestions are the generic openers used when no progress is known,
// such as after a provider failure.
var OrientingQuestions = []string{
	"Please describe your main symptoms.",
	"How long have you been experiencing these symptoms?",
}

type question struct {
	// fills is the category the answer would cover; empty means the
	// question always applies.
	fills Category
	text  string
}

var (
	basicQuestions = []question{
		{CategorySymptoms, "Could you describe the main symptoms you have been experiencing?"},
		{CategoryMedicalHistory, "Do you have any existing medical conditions or past diagnoses?"},
		{CategoryDuration, "How long have you been experiencing these symptoms?"},
	}
	depthQuestions = []question{
		{CategorySeverity, "On a scale of 1 to 10, how severe are your symptoms?"},
		{CategoryTriggers, "Have you noticed anything that triggers or worsens your symptoms?"},
		{CategoryImpactAssessment, "How are these symptoms affecting your daily life or work?"},
		{CategoryFamilyHistory, "Does anyone in your family have similar symptoms or neurological conditions?"},
	}
	closingQuestions = []question{
		{CategoryTreatmentHistory, "Have you tried any treatments or seen a specialist about this before?"},
		{CategoryHearingConcerns, "Have you noticed any changes in your hearing or balance?"},
		{"", "What would you most like to get out of this assessment?"},
	}
)

// Suggest ranks up to three follow-up questions for the score band, keeping
// only those that would fill a category named in untouched (see
// CollectedData.Untouched). The result is never empty.
func Suggest(score int, untouched []string, r Rules) []string {
	tier := basicQuestions
	switch {
	case score >= r.AdvisorHighScore:
		tier = closingQuestions
	case score >= r.AdvisorMidScore:
		tier = depthQuestions
	}

	out := make([]string, 0, MaxSuggestions)
	for _, q := range tier {
		if len(out) == MaxSuggestions {
			break
		}
		if q.fills == "" || slices.Contains(untouched, string(q.fills)) {
			out = append(out, q.text)
		}
	}

	if len(out) < 2 && len(out) < MaxSuggestions {
		out = append(out, ClosingQuestion)
	}
	return out
}
