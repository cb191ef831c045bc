package assessment

import (
	"regexp"
	"strconv"
	"strings"
)

// Extractor turns free text into structured facts. KeywordExtractor is the
// default; a classifier-backed implementation can replace it without any
// other component changing.
type Extractor interface {
	Extract(text string) CollectedData
}

// Severity levels.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// generalSeverityKey holds a severity reading that could not be tied to a
// symptom named in the same utterance.
const generalSeverityKey = "general"

type symptomTerm struct {
	label    string
	keywords []string
}

// symptomVocabulary is ordered; labels are reported in this order.
var symptomVocabulary = []symptomTerm{
	{"headache", []string{"headache", "head ache", "head hurts"}},
	{"migraine", []string{"migraine"}},
	{"pain", []string{"pain", "hurts", "hurting", "sore"}},
	{"dizziness", []string{"dizz", "vertigo", "lightheaded", "light-headed", "spinning"}},
	{"numbness", []string{"numb"}},
	{"tingling", []string{"tingl", "pins and needles"}},
	{"weakness", []string{"weak"}},
	{"tremor", []string{"tremor", "trembl", "shaking", "shaky"}},
	{"memory problems", []string{"memory", "forget", "confus"}},
	{"vision problems", []string{"vision", "blurr", "seeing spots"}},
	{"hearing loss", []string{"hearing loss", "hard of hearing", "can't hear", "cannot hear", "muffled"}},
	{"tinnitus", []string{"tinnitus", "ringing", "buzzing"}},
	{"fatigue", []string{"fatigue", "tired", "exhaust"}},
	{"nausea", []string{"nause", "vomit"}},
	{"seizures", []string{"seizure", "convuls"}},
	{"balance problems", []string{"balance", "unsteady"}},
	{"sleep problems", []string{"insomnia", "can't sleep", "trouble sleeping", "sleepless"}},
	{"mood changes", []string{"anxi", "depress", "irritab", "mood"}},
	{"speech difficulty", []string{"slurred", "speech"}},
}

// evidenceVocabulary maps list categories (other than symptoms) to the
// keywords that touch them. Matching sentences are kept verbatim as evidence.
var evidenceVocabulary = map[Category][]string{
	CategoryTriggers: {
		"trigger", "worse when", "worse after", "worse in", "worse at", "set off", "brings on", "bright light",
	},
	CategoryMedicalHistory: {
		"diagnosed", "condition", "disease", "history of", "hypertension", "blood pressure", "diabetes",
		"stroke", "epilep", "concussion", "head injury", "asthma", "thyroid", "cholesterol",
	},
	CategoryMedications: {
		"medication", "medicine", "pill", "tablet", "prescri", "ibuprofen", "paracetamol", "aspirin", "antibiotic",
	},
	CategoryAllergies: {"allerg"},
	CategorySurgeries: {"surgery", "operation", "operated", "surgical"},
	CategoryFamilyHistory: {
		"family", "father", "mother", "brother", "sister", "parents", "grandfather", "grandmother", "runs in",
	},
	CategoryRiskFactors: {"smok", "alcohol", "stress", "overweight", "obes", "drug use", "vaping"},
	CategoryLifestyleFactors: {
		"exercise", "diet", "caffeine", "coffee", "sedentary", "screen time", "headphones", "earbuds",
	},
	CategoryOccupationalFactors: {"work", "job", "occupation", "factory", "construction", "shift"},
	CategoryEnvironmentalFactors: {"noise", "noisy", "loud", "pollution", "chemical", "toxic", "mold"},
	CategoryHearingConcerns: {
		"hearing", "tinnitus", "ringing", "muffled", "earache", "ear pain", "my ear", "deaf", "volume",
	},
	CategoryImpactAssessment: {
		"daily life", "daily activities", "can't work", "cannot work", "affect", "interfer", "struggle",
		"difficult to", "hard to", "quality of life",
	},
	CategoryTreatmentHistory: {
		"treatment", "therapy", "physiotherapy", "tried", "specialist", "neurologist", "audiologist", "hospital",
	},
}

// Closed vocabularies for scalar fields: token -> normalised value.
var (
	severityTokens = map[string]string{
		"mild":         SeverityMild,
		"slight":       SeverityMild,
		"moderate":     SeverityModerate,
		"severe":       SeveritySevere,
		"intense":      SeveritySevere,
		"unbearable":   SeveritySevere,
		"excruciating": SeveritySevere,
	}
	durationTokens = map[string]string{
		"days":    "days",
		"day ago": "days",
		"weeks":   "weeks",
		"a week":  "weeks",
		"months":  "months",
		"a month": "months",
		"years":   "years",
		"a year":  "years",
	}
	locationTokens = map[string]string{
		"head":  "head",
		"neck":  "neck",
		"back":  "back",
		"left":  "left",
		"right": "right",
	}
	frequencyTokens = map[string]string{
		"daily":          "daily",
		"every day":      "daily",
		"weekly":         "weekly",
		"every week":     "weekly",
		"constant":       "constant",
		"all the time":   "constant",
		"intermittent":   "intermittent",
		"on and off":     "intermittent",
		"comes and goes": "intermittent",
	}
)

// painScale matches "7/10" or "7 out of 10".
var painScale = regexp.MustCompile(`\b(10|[0-9])\s*(?:/|out of)\s*10\b`)

// KeywordExtractor matches fixed vocabularies case-insensitively by
// substring. It does no negation handling.
type KeywordExtractor struct{}

var _ Extractor = KeywordExtractor{}

// Extract returns the facts mentioned in text. An utterance without any
// recognised keyword yields an empty CollectedData.
func (KeywordExtractor) Extract(text string) CollectedData {
	var out CollectedData
	lower := strings.ToLower(text)
	if strings.TrimSpace(lower) == "" {
		return out
	}

	for _, term := range symptomVocabulary {
		if containsAny(lower, term.keywords) {
			out.Symptoms = append(out.Symptoms, term.label)
		}
	}

	for _, sentence := range sentences(text) {
		ls := strings.ToLower(sentence)
		for c, keywords := range evidenceVocabulary {
			if containsAny(ls, keywords) {
				l := out.lists()[c]
				*l = union(*l, []string{sentence})
			}
		}
	}

	if level := lastSeverity(lower); level != "" {
		out.SeverityLevels = make(map[string]string)
		if len(out.Symptoms) == 0 {
			out.SeverityLevels[generalSeverityKey] = level
		}
		for _, s := range out.Symptoms {
			out.SeverityLevels[s] = level
		}
	}

	out.Duration, _ = lastToken(lower, durationTokens)
	out.Location, _ = lastToken(lower, locationTokens)
	out.Frequency, _ = lastToken(lower, frequencyTokens)

	return out
}

// Extract runs the default keyword extractor.
func Extract(text string) CollectedData {
	return KeywordExtractor{}.Extract(text)
}

// ExtractAll folds extraction over a sequence of utterances in order.
func ExtractAll(ex Extractor, texts []string) CollectedData {
	var out CollectedData
	for _, t := range texts {
		out.Merge(ex.Extract(t))
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// lastToken returns the value of the token whose last occurrence starts
// furthest into s, and that position. Ties go to the longer token.
func lastToken(s string, tokens map[string]string) (string, int) {
	best, bestPos, bestLen := "", -1, 0
	for tok, val := range tokens {
		pos := strings.LastIndex(s, tok)
		if pos < 0 {
			continue
		}
		if pos > bestPos || (pos == bestPos && len(tok) > bestLen) {
			best, bestPos, bestLen = val, pos, len(tok)
		}
	}
	return best, bestPos
}

func lastSeverity(s string) string {
	level, pos := lastToken(s, severityTokens)

	matches := painScale.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return level
	}
	m := matches[len(matches)-1]
	if m[0] <= pos {
		return level
	}
	n, err := strconv.Atoi(s[m[2]:m[3]])
	if err != nil {
		return level
	}
	switch {
	case n >= 7:
		return SeveritySevere
	case n >= 4:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

func sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '.', '!', '?', '\n', ';':
			return true
		}
		return false
	})

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
