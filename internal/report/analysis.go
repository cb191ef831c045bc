package report

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medical-intake-agent/internal/agent"
	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/logging"
)

// maxRecommendations bounds the advice lines lifted from an analysis.
const maxRecommendations = 3

var recommendationKeywords = []string{"recommend", "suggest", "advise", "consider"}

var errEmptyAnalysis = errors.New("provider returned an empty analysis")

// SymptomAnalyzer gives general, non-diagnostic information about a list of
// symptoms.
type SymptomAnalyzer struct {
	gen Generator
	log zerolog.Logger
}

var _ consultation.SymptomAnalyzer = (*SymptomAnalyzer)(nil)

func NewSymptomAnalyzer(gen Generator) *SymptomAnalyzer {
	return &SymptomAnalyzer{gen: gen, log: logging.Component("symptoms")}
}

func (a *SymptomAnalyzer) AnalyzeSymptoms(ctx context.Context, symptoms []string) (*consultation.SymptomAnalysis, error) {
	raw, err := a.gen.Generate(ctx, buildAnalysisPrompt(symptoms))
	if err != nil {
		if errors.Is(err, agent.ErrEmptyResponse) {
			return nil, &consultation.Error{Kind: consultation.KindMalformedOutput, Err: err}
		}
		return nil, &consultation.Error{Kind: consultation.KindProviderUnavailable, Err: err}
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &consultation.Error{Kind: consultation.KindMalformedOutput, Err: errEmptyAnalysis}
	}

	recs := ExtractRecommendations(text)
	a.log.Debug().Ctx(ctx).Int("symptoms", len(symptoms)).Int("recommendations", len(recs)).Msg("symptoms analyzed")
	return &consultation.SymptomAnalysis{
		Symptoms:        symptoms,
		Analysis:        text,
		Recommendations: recs,
	}, nil
}

func buildAnalysisPrompt(symptoms []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze these neurological symptoms: %s\n\n", strings.Join(symptoms, ", "))
	sb.WriteString("Provide:\n")
	sb.WriteString("1. General information about these symptoms\n")
	sb.WriteString("2. Common causes (non-diagnostic)\n")
	sb.WriteString("3. When to seek medical attention\n")
	sb.WriteString("4. General lifestyle recommendations\n\n")
	sb.WriteString("Do not diagnose. Format as a structured response.\n")
	return sb.String()
}

// ExtractRecommendations returns up to three lines of text that give advice,
// in the order they appear, without list markers.
func ExtractRecommendations(text string) []string {
	out := []string{}
	for _, line := range strings.Split(text, "\n") {
		if len(out) == maxRecommendations {
			break
		}
		lower := strings.ToLower(line)
		for _, kw := range recommendationKeywords {
			if strings.Contains(lower, kw) {
				if l := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• ")); l != "" {
					out = append(out, l)
				}
				break
			}
		}
	}
	return out
}
