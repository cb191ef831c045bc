package consultation

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"medical-intake-agent/internal/assessment"
)

const (
	staleAfter    = 90 * 24 * time.Hour
	followUpAfter = 30 * 24 * time.Hour
)

func (s *service) ListReports(ctx context.Context, userID string) ([]Report, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, callerError(ReasonMissingUser)
	}
	reports, err := s.repo.ListReports(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	if reports == nil {
		reports = []Report{}
	}
	return reports, nil
}

func (s *service) LatestReport(ctx context.Context, userID string) (*Report, error) {
	reports, err := s.ListReports(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, notFound("report", ErrNotFound)
	}
	return &reports[0], nil
}

func (s *service) ReportSummary(ctx context.Context, userID string) (*ReportSummary, error) {
	reports, err := s.ListReports(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, notFound("report", ErrNotFound)
	}
	summary := summarizeReports(strings.TrimSpace(userID), reports, s.now())
	return &summary, nil
}

// summarizeReports aggregates reports, which must be non-empty and ordered
// most recent first.
func summarizeReports(userID string, reports []Report, now time.Time) ReportSummary {
	sum := ReportSummary{
		UserID:            userID,
		TotalReports:      len(reports),
		LatestReport:      reports[0],
		StageDistribution: make(map[assessment.Stage]int),
	}
	for _, r := range reports {
		if r.Complete {
			sum.CompletedReports++
		}
		sum.StageDistribution[r.Stage]++
	}

	rate := float64(sum.CompletedReports) / float64(sum.TotalReports) * 100
	sum.CompletionRate = math.Round(rate*10) / 10
	sum.Recommendations = historyRecommendations(rate, now.Sub(reports[0].CreatedAt))
	return sum
}

func historyRecommendations(completionRate float64, sinceLatest time.Duration) []string {
	var out []string
	switch {
	case completionRate < 50:
		out = append(out, "Many of your assessments are incomplete. Consider completing them for better health insights.")
	case completionRate < 80:
		out = append(out, "Most assessments are complete. Continue with regular health monitoring.")
	default:
		out = append(out, "You have a comprehensive health record. Keep up with regular assessments.")
	}

	switch {
	case sinceLatest > staleAfter:
		out = append(out, "It has been over three months since your last assessment. Consider scheduling a new health evaluation.")
	case sinceLatest > followUpAfter:
		out = append(out, "Consider scheduling a follow-up assessment to track your health progress.")
	}

	return append(out,
		"Share your reports with healthcare providers for better care coordination.",
		"Keep track of any new symptoms or changes in your condition.",
	)
}

// AnalyzeSymptoms returns general information about symptoms. Blank entries
// are ignored; a list with none left is a caller error.
func (s *service) AnalyzeSymptoms(ctx context.Context, symptoms []string) (*SymptomAnalysis, error) {
	cleaned := make([]string, 0, len(symptoms))
	for _, sym := range symptoms {
		if sym = strings.TrimSpace(sym); sym != "" {
			cleaned = append(cleaned, sym)
		}
	}
	if len(cleaned) == 0 {
		return nil, callerError(ReasonNoSymptoms)
	}
	if s.analyzer == nil {
		return nil, &Error{Kind: KindProviderUnavailable, Reason: "symptom_analysis"}
	}

	genCtx, cancel := s.providerContext(ctx)
	defer cancel()
	analysis, err := s.analyzer.AnalyzeSymptoms(genCtx, cleaned)
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindProviderUnavailable
		}
		s.log.Warn().Ctx(ctx).Err(err).Str("failure", string(kind)).Msg("symptom analysis failed")
		return nil, &Error{Kind: kind, Reason: "symptom_analysis", Err: err}
	}
	return analysis, nil
}
