package report

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"medical-intake-agent/internal/assessment"
	"medical-intake-agent/internal/consultation"
)

type fakeGenerator struct {
	reply  string
	err    error
	prompt string
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.reply, g.err
}

type sentMessage struct {
	chatID int64
	text   string
}

type sentDocument struct {
	chatID   int64
	data     []byte
	fileName string
}

type fakeTelegram struct {
	messages  []sentMessage
	documents []sentDocument
	err       error
}

func (f *fakeTelegram) SendMessage(_ context.Context, chatID int64, text string) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, sentMessage{chatID, text})
	return nil
}

func (f *fakeTelegram) SendDocument(_ context.Context, chatID int64, data []byte, fileName string) error {
	if f.err != nil {
		return f.err
	}
	f.documents = append(f.documents, sentDocument{chatID, data, fileName})
	return nil
}

type fakeRenderer struct {
	err error
}

func (f fakeRenderer) RenderPDF(r consultation.Report) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-" + r.SessionID.String()), nil
}

var errUnreachable = errors.New("dial tcp: connection refused")

func sampleInput() consultation.SynthesisInput {
	return consultation.SynthesisInput{
		SessionID: uuid.New(),
		Collected: assessment.CollectedData{
			Symptoms:       []string{"headache"},
			SeverityLevels: map[string]string{"headache": "severe"},
			Location:       "head",
			MedicalHistory: []string{"I was diagnosed with high blood pressure and take medication for it"},
			RiskFactors:    []string{"I smoke and drink alcohol, and my father had the same problem"},
		},
		HearingTests: []consultation.HearingTest{
			{ID: "t2", LeftEarScore: 85, RightEarScore: 72.5, OverallScore: 78, TakenAt: time.Now()},
			{ID: "t1", LeftEarScore: 50, RightEarScore: 50, OverallScore: 50, TakenAt: time.Now().Add(-time.Hour)},
		},
		UserContext: assessment.UserContext{Age: 54},
		Progress: assessment.Progress{
			Stage:              assessment.StageReadyForSummary,
			CompletionScore:    79,
			AssessmentComplete: true,
		},
	}
}

func sampleReport() consultation.Report {
	in := sampleInput()
	return consultation.Report{
		ID:            uuid.New(),
		SessionID:     in.SessionID,
		UserID:        "user-1",
		Title:         "Intake assessment 2026-10-15",
		Sections:      consultation.ReportSections{ExecutiveSummary: "Severe headache."},
		CollectedData: in.Collected,
		HearingTests:  in.HearingTests,
		Stage:         assessment.StageReadyForSummary,
		Score:         79,
		Complete:      true,
		GeneratedAt:   time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC),
	}
}
