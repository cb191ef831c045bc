// Package report turns a finished intake into a clinician-facing document:
// prose synthesis, section parsing, PDF rendering and delivery.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"medical-intake-agent/internal/agent"
	"medical-intake-agent/internal/assessment"
	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/logging"
)

var errEmptyReport = errors.New("provider returned an empty report")

// Generator produces report prose from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Synthesizer writes the six report sections with a Generator.
type Synthesizer struct {
	gen Generator
	log zerolog.Logger
}

var _ consultation.ReportSynthesizer = (*Synthesizer)(nil)

func NewSynthesizer(gen Generator) *Synthesizer {
	return &Synthesizer{gen: gen, log: logging.Component("report")}
}

// Synthesize asks the provider for prose over the supplied facts and splits
// it into sections. A provider failure or an empty reply is an error; no
// partial report is ever returned.
func (s *Synthesizer) Synthesize(ctx context.Context, in consultation.SynthesisInput) (consultation.ReportSections, error) {
	raw, err := s.gen.Generate(ctx, buildReportPrompt(in))
	if err != nil {
		if errors.Is(err, agent.ErrEmptyResponse) {
			return consultation.ReportSections{}, &consultation.Error{Kind: consultation.KindMalformedOutput, Err: err}
		}
		return consultation.ReportSections{}, &consultation.Error{Kind: consultation.KindProviderUnavailable, Err: err}
	}

	text := strings.TrimSpace(raw)
	if text == "" {
		return consultation.ReportSections{}, &consultation.Error{Kind: consultation.KindMalformedOutput, Err: errEmptyReport}
	}

	sections, found := ParseSections(text)
	if found < sectionCount {
		s.log.Warn().Ctx(ctx).
			Int("headings", found).
			Msg("report reply is missing section headings")
	}
	return sections, nil
}

const notReported = "Not reported"

func buildReportPrompt(in consultation.SynthesisInput) string {
	var sb strings.Builder
	d := in.Collected

	sb.WriteString("Write a structured intake report for a clinician from the patient data below.\n")
	sb.WriteString("Use ONLY the facts listed. Do not add, infer or invent any symptom, condition or result. ")
	sb.WriteString("Where a fact is not reported, say so. Do not diagnose.\n\n")

	sb.WriteString("Patient data:\n")
	writeFact(&sb, "Symptoms", strings.Join(d.Symptoms, ", "))
	writeFact(&sb, "Severity levels", formatSeverity(d.SeverityLevels))
	writeFact(&sb, "Duration", d.Duration)
	writeFact(&sb, "Location", d.Location)
	writeFact(&sb, "Frequency", d.Frequency)
	writeList(&sb, "Triggers", d.Triggers)
	writeList(&sb, "Medical history", d.MedicalHistory)
	writeList(&sb, "Medications", d.Medications)
	writeList(&sb, "Allergies", d.Allergies)
	writeList(&sb, "Surgeries", d.Surgeries)
	writeList(&sb, "Family history", d.FamilyHistory)
	writeList(&sb, "Risk factors", d.RiskFactors)
	writeList(&sb, "Lifestyle factors", d.LifestyleFactors)
	writeList(&sb, "Occupational factors", d.OccupationalFactors)
	writeList(&sb, "Environmental factors", d.EnvironmentalFactors)
	writeList(&sb, "Hearing concerns", d.HearingConcerns)
	writeList(&sb, "Impact on daily life", d.ImpactAssessment)
	writeList(&sb, "Treatment history", d.TreatmentHistory)

	sb.WriteString("\nHearing results: ")
	sb.WriteString(HearingSummary(in.HearingTests))
	sb.WriteString("\n")
	if len(in.HearingTests) > 0 {
		fmt.Fprintf(&sb, "Hearing interpretation: %s\n", bandAdvice[HearingBandOf(in.HearingTests[0].OverallScore)])
	}

	if profile := formatProfile(in.UserContext); profile != "" {
		sb.WriteString("\nPatient profile:\n")
		sb.WriteString(profile)
	}

	fmt.Fprintf(&sb, "\nAssessment: stage %s, completeness %d/100", in.Progress.Stage, in.Progress.CompletionScore)
	if !in.Progress.AssessmentComplete {
		sb.WriteString(" (incomplete, mark the report as preliminary)")
	}
	sb.WriteString(".\n")

	sb.WriteString("\nWrite the report under exactly these six numbered headings, in this order, each on its own line:\n")
	for i, title := range sectionTitles {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, title)
	}
	sb.WriteString("Be concise and professional. Do not add any other headings.")
	return sb.String()
}

func writeFact(sb *strings.Builder, label, value string) {
	if value == "" {
		value = notReported
	}
	fmt.Fprintf(sb, "%s: %s\n", label, value)
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(sb, "%s: %s\n", label, notReported)
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

func formatSeverity(levels map[string]string) string {
	keys := make([]string, 0, len(levels))
	for k := range levels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+levels[k])
	}
	return strings.Join(parts, ", ")
}

func formatProfile(uc assessment.UserContext) string {
	var sb strings.Builder
	if uc.Age > 0 {
		fmt.Fprintf(&sb, "- Age: %d\n", uc.Age)
	}
	if uc.Gender != "" {
		fmt.Fprintf(&sb, "- Gender: %s\n", uc.Gender)
	}
	if len(uc.MedicalHistory) > 0 {
		fmt.Fprintf(&sb, "- Recorded history: %s\n", strings.Join(uc.MedicalHistory, "; "))
	}
	return sb.String()
}

// HearingBand is a coarse reading of an overall hearing score.
type HearingBand string

const (
	HearingNormal      HearingBand = "normal"
	HearingMild        HearingBand = "mild"
	HearingSignificant HearingBand = "significant"
)

var bandAdvice = map[HearingBand]string{
	HearingNormal:      "Hearing is normal.",
	HearingMild:        "Mild hearing loss detected. Consider seeing an audiologist.",
	HearingSignificant: "Significant hearing loss detected. Medical consultation strongly advised.",
}

// HearingBandOf classifies an overall score in percent.
func HearingBandOf(overall float64) HearingBand {
	switch {
	case overall >= 75:
		return HearingNormal
	case overall >= 60:
		return HearingMild
	default:
		return HearingSignificant
	}
}

// HearingSummary describes the most recent test. Tests are ordered most
// recent first.
func HearingSummary(tests []consultation.HearingTest) string {
	if len(tests) == 0 {
		return "No hearing tests available"
	}
	t := tests[0]
	return fmt.Sprintf("Latest hearing test: Left ear %s%%, Right ear %s%%, Overall %s%%",
		percent(t.LeftEarScore), percent(t.RightEarScore), percent(t.OverallScore))
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
