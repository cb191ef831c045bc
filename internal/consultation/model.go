package consultation

import (
	"time"

	"github.com/google/uuid"

	"medical-intake-agent/internal/assessment"
)

// Role identifies who produced a turn.
type Role string

const (
	RolePatient   Role = "patient"
	RoleAttendant Role = "attendant"
)

// Session is one assessment run. Exactly one session per user is active.
type Session struct {
	ID     uuid.UUID `json:"id"`
	UserID string    `json:"user_id"`
	Active bool      `json:"active"`

	Stage        assessment.Stage `json:"stage"`
	Score        int              `json:"score"`
	PatientTurns int              `json:"patient_turns"`

	// CompletionReason is set once the assessment is complete. A completed
	// session accepts no further turns.
	CompletionReason string `json:"completion_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Complete reports whether the assessment has been completed.
func (s *Session) Complete() bool {
	return s.CompletionReason != ""
}

// Turn is one persisted utterance. Turns are immutable.
type Turn struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// HearingTest is one prior hearing test result. Scores are percentages.
type HearingTest struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	LeftEarScore  float64   `json:"left_ear_score"`
	RightEarScore float64   `json:"right_ear_score"`
	OverallScore  float64   `json:"overall_score"`
	TakenAt       time.Time `json:"taken_at"`
}

// ReportSections are the six prose sections of a report. Missing sections
// are empty strings.
type ReportSections struct {
	ExecutiveSummary string `json:"executive_summary"`
	SymptomAnalysis  string `json:"symptom_analysis"`
	RiskAssessment   string `json:"risk_assessment"`
	HearingSummary   string `json:"hearing_summary"`
	Recommendations  string `json:"recommendations"`
	FollowUpActions  string `json:"follow_up_actions"`
}

// Report is the terminal artifact of a session, at most one per session.
type Report struct {
	ID        uuid.UUID `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`

	Sections      ReportSections           `json:"sections"`
	CollectedData assessment.CollectedData `json:"collected_data"`
	HearingTests  []HearingTest            `json:"hearing_tests"`
	UserContext   assessment.UserContext   `json:"user_context"`

	Stage assessment.Stage `json:"stage"`
	Score int              `json:"score"`

	// Complete marks a report built from a completed assessment. Complete
	// reports are only regenerated on explicit override.
	Complete    bool      `json:"complete"`
	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TurnResult is the structured outcome of one patient turn.
type TurnResult struct {
	SessionID     uuid.UUID           `json:"session_id"`
	Message       string              `json:"message"`
	Progress      assessment.Progress `json:"progress"`
	NextQuestions []string            `json:"next_questions"`

	// Failure tags a degraded result; empty on success.
	Failure Kind `json:"failure,omitempty"`
}

// SynthesisInput is everything a report is written from.
type SynthesisInput struct {
	SessionID    uuid.UUID
	Collected    assessment.CollectedData
	HearingTests []HearingTest
	UserContext  assessment.UserContext
	Progress     assessment.Progress
}

// ReportSummary aggregates a user's report history.
type ReportSummary struct {
	UserID            string                   `json:"user_id"`
	TotalReports      int                      `json:"total_reports"`
	CompletedReports  int                      `json:"completed_reports"`
	CompletionRate    float64                  `json:"completion_rate"` // percent, one decimal
	LatestReport      Report                   `json:"latest_report"`
	StageDistribution map[assessment.Stage]int `json:"stage_distribution"`
	Recommendations   []string                 `json:"recommendations"`
}

// SymptomAnalysis is general, non-diagnostic information about symptoms.
type SymptomAnalysis struct {
	Symptoms        []string `json:"symptoms"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
}
