package consultation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"medical-intake-agent/internal/assessment"
	"medical-intake-agent/internal/memory"
)

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]Session
	turns    map[uuid.UUID][]Turn
	reports  map[uuid.UUID]Report
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[uuid.UUID]Session),
		turns:    make(map[uuid.UUID][]Turn),
		reports:  make(map[uuid.UUID]Report),
	}
}

func (r *fakeRepo) CreateSession(_ context.Context, s *Session) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deactivated []uuid.UUID
	for id, other := range r.sessions {
		if other.UserID == s.UserID && other.Active {
			other.Active = false
			r.sessions[id] = other
			deactivated = append(deactivated, id)
		}
	}
	r.sessions[s.ID] = *s
	return deactivated, nil
}

func (r *fakeRepo) GetSession(_ context.Context, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *fakeRepo) UpdateSession(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	r.sessions[s.ID] = *s
	return nil
}

func (r *fakeRepo) AppendTurn(_ context.Context, t *Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.turns[t.SessionID] = append(r.turns[t.SessionID], *t)
	return nil
}

func (r *fakeRepo) ListTurns(_ context.Context, sessionID uuid.UUID) ([]Turn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.turns[sessionID]), nil
}

func (r *fakeRepo) GetReport(_ context.Context, sessionID uuid.UUID) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep, ok := r.reports[sessionID]
	if !ok {
		return nil, nil
	}
	return &rep, nil
}

func (r *fakeRepo) PutReport(_ context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	rep.UpdatedAt = time.Now()
	r.reports[rep.SessionID] = *rep
	return nil
}

func (r *fakeRepo) ListReports(_ context.Context, userID string) ([]Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if rep.UserID == userID {
			out = append(out, rep)
		}
	}
	slices.SortFunc(out, func(a, b Report) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (r *fakeRepo) turnCount(sessionID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns[sessionID])
}

// fakeGenerator replays canned replies; when replies run out it returns
// a fixed question.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	prompts []string
}

var _ Generator = (*fakeGenerator)(nil)

func (g *fakeGenerator) next(prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.replies) == 0 {
		return `{"message": "Could you tell me more?", "assessment_complete": false}`, nil
	}
	reply := g.replies[0]
	g.replies = g.replies[1:]
	return reply, nil
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return g.next(prompt)
}

func (g *fakeGenerator) GenerateStream(_ context.Context, prompt string, onDelta func(string)) (string, error) {
	reply, err := g.next(prompt)
	if err != nil {
		return "", err
	}
	for _, word := range splitKeep(reply) {
		onDelta(word)
	}
	return reply, nil
}

func (g *fakeGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

func splitKeep(s string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if r == ' ' {
			out = append(out, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

type fakeSynthesizer struct {
	sections ReportSections
	err      error
	calls    int
	last     SynthesisInput
}

var _ ReportSynthesizer = (*fakeSynthesizer)(nil)

func (f *fakeSynthesizer) Synthesize(_ context.Context, in SynthesisInput) (ReportSections, error) {
	f.calls++
	f.last = in
	if f.err != nil {
		return ReportSections{}, f.err
	}
	return f.sections, nil
}

type fakePublisher struct {
	published []Report
}

func (f *fakePublisher) Publish(_ context.Context, r Report) error {
	f.published = append(f.published, r)
	return nil
}

type fakeProfiles struct {
	uc  assessment.UserContext
	err error
}

func (f fakeProfiles) UserContext(context.Context, string) (assessment.UserContext, error) {
	return f.uc, f.err
}

type fakeHearing struct {
	tests []HearingTest
}

func (f fakeHearing) HearingTests(context.Context, string) ([]HearingTest, error) {
	return f.tests, nil
}

type fakeAnalyzer struct {
	analysis SymptomAnalysis
	err      error
	got      []string
}

func (f *fakeAnalyzer) AnalyzeSymptoms(_ context.Context, symptoms []string) (*SymptomAnalysis, error) {
	f.got = symptoms
	if f.err != nil {
		return nil, f.err
	}
	a := f.analysis
	a.Symptoms = symptoms
	return &a, nil
}

var errProviderDown = errors.New("connection refused")

type testEnv struct {
	repo  *fakeRepo
	mem   *memory.InMemoryStore
	gen   *fakeGenerator
	synth *fakeSynthesizer
	pub   *fakePublisher
	an    *fakeAnalyzer
	svc   Service
}

func testSettings() Settings {
	return Settings{
		Rules:           assessment.DefaultRules(),
		TurnCeiling:     10,
		HistoryWindow:   10,
		MinReportTurns:  2,
		ProviderTimeout: 5 * time.Second,
	}
}

func newTestEnv(replies ...string) *testEnv {
	env := &testEnv{
		repo: newFakeRepo(),
		mem:  memory.NewInMemoryStore(time.Hour),
		gen:  &fakeGenerator{replies: replies},
		synth: &fakeSynthesizer{sections: ReportSections{
			ExecutiveSummary: "summary",
			SymptomAnalysis:  "symptoms",
			RiskAssessment:   "risks",
			HearingSummary:   "hearing",
			Recommendations:  "recommendations",
			FollowUpActions:  "follow-up",
		}},
		pub: &fakePublisher{},
		an: &fakeAnalyzer{analysis: SymptomAnalysis{
			Analysis:        "General information.",
			Recommendations: []string{"Consider keeping a symptom diary."},
		}},
	}
	env.svc = env.newService(env.mem)
	return env
}

func (e *testEnv) newService(mem memory.Store) Service {
	return NewService(Deps{
		Repo:         e.repo,
		Memory:       mem,
		Generator:    e.gen,
		Synthesizer:  e.synth,
		Publisher:    e.pub,
		HearingTests: fakeHearing{},
		Analyzer:     e.an,
	}, testSettings())
}
