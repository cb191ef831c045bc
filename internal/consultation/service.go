package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medical-intake-agent/internal/assessment"
	"medical-intake-agent/internal/logging"
	"medical-intake-agent/internal/memory"
)

// Generator is the external text generation provider.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateStream(ctx context.Context, prompt string, onDelta func(string)) (string, error)
}

// ReportSynthesizer writes the six report sections.
type ReportSynthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) (ReportSections, error)
}

// ReportPublisher delivers a finished report to a clinician.
type ReportPublisher interface {
	Publish(ctx context.Context, r Report) error
}

// ProfileProvider returns the read-only user context. A user without a
// profile yields the zero context and no error.
type ProfileProvider interface {
	UserContext(ctx context.Context, userID string) (assessment.UserContext, error)
}

// HearingTestProvider lists prior hearing tests, most recent first.
type HearingTestProvider interface {
	HearingTests(ctx context.Context, userID string) ([]HearingTest, error)
}

// SymptomAnalyzer explains symptoms outside of an assessment.
type SymptomAnalyzer interface {
	AnalyzeSymptoms(ctx context.Context, symptoms []string) (*SymptomAnalysis, error)
}

type Service interface {
	StartSession(ctx context.Context, userID string) (*Session, error)
	HandleTurn(ctx context.Context, sessionID uuid.UUID, text string) (*TurnResult, error)
	HandleTurnStream(ctx context.Context, sessionID uuid.UUID, text string, onDelta func(string)) (*TurnResult, error)
	Transcript(ctx context.Context, sessionID uuid.UUID) ([]Turn, error)
	Progress(ctx context.Context, sessionID uuid.UUID) (*assessment.Progress, error)
	ForceComplete(ctx context.Context, sessionID uuid.UUID) (*assessment.Progress, error)
	RequestReport(ctx context.Context, sessionID uuid.UUID, force bool) (*Report, error)
	GetReport(ctx context.Context, sessionID uuid.UUID) (*Report, error)

	ListReports(ctx context.Context, userID string) ([]Report, error)
	LatestReport(ctx context.Context, userID string) (*Report, error)
	ReportSummary(ctx context.Context, userID string) (*ReportSummary, error)
	AnalyzeSymptoms(ctx context.Context, symptoms []string) (*SymptomAnalysis, error)
}

// Settings are the orchestration tunables.
type Settings struct {
	Rules           assessment.Rules
	TurnCeiling     int
	HistoryWindow   int
	MinReportTurns  int
	ProviderTimeout time.Duration
}

// Deps are the collaborators of the service. Profiles, HearingTests,
// Publisher and Analyzer are optional.
type Deps struct {
	Repo         Repository
	Memory       memory.Store
	Generator    Generator
	Synthesizer  ReportSynthesizer
	Publisher    ReportPublisher
	Profiles     ProfileProvider
	HearingTests HearingTestProvider
	Extractor    assessment.Extractor
	Analyzer     SymptomAnalyzer
}

type service struct {
	repo      Repository
	mem       memory.Store
	gen       Generator
	synth     ReportSynthesizer
	publisher ReportPublisher
	profiles  ProfileProvider
	hearing   HearingTestProvider
	extractor assessment.Extractor
	analyzer  SymptomAnalyzer
	settings  Settings
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(deps Deps, settings Settings) Service {
	if deps.Extractor == nil {
		deps.Extractor = assessment.KeywordExtractor{}
	}
	return &service{
		repo:      deps.Repo,
		mem:       deps.Memory,
		gen:       deps.Generator,
		synth:     deps.Synthesizer,
		publisher: deps.Publisher,
		profiles:  deps.Profiles,
		hearing:   deps.HearingTests,
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		settings:  settings,
		log:       logging.Component("consultation"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) StartSession(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, callerError(ReasonMissingUser)
	}

	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		UserID:    userID,
		Active:    true,
		Stage:     assessment.StageInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}
	deactivated, err := s.repo.CreateSession(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	for _, id := range deactivated {
		if err := s.mem.Delete(ctx, id.String()); err != nil {
			s.log.Warn().Err(err).Str("session_id", id.String()).Msg("failed to evict deactivated session")
		}
	}

	entry := &memory.Entry{SessionID: sess.ID.String(), UserID: userID, Stage: assessment.StageInitial}
	if err := s.mem.Create(ctx, entry); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache new session")
	}

	ctx = logging.WithUserID(logging.WithSessionID(ctx, sess.ID.String()), userID)
	s.log.Info().Ctx(ctx).Int("deactivated", len(deactivated)).Msg("session started")
	return sess, nil
}

func (s *service) HandleTurn(ctx context.Context, sessionID uuid.UUID, text string) (*TurnResult, error) {
	return s.turn(ctx, sessionID, text, true, s.gen.Generate)
}

func (s *service) HandleTurnStream(ctx context.Context, sessionID uuid.UUID, text string, onDelta func(string)) (*TurnResult, error) {
	return s.turn(ctx, sessionID, text, false, func(ctx context.Context, prompt string) (string, error) {
		return s.gen.GenerateStream(ctx, prompt, onDelta)
	})
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

// turn runs one patient utterance through the engine. Only caller errors,
// missing sessions and storage failures are returned as errors; provider
// trouble degrades into a tagged result.
func (s *service) turn(ctx context.Context, sessionID uuid.UUID, text string, jsonReply bool, generate generateFunc) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, callerError(ReasonEmptyText)
	}

	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithUserID(logging.WithSessionID(ctx, sess.ID.String()), sess.UserID)

	switch {
	case !sess.Active:
		return nil, callerError(ReasonSessionInactive)
	case sess.Complete() || sess.PatientTurns >= s.settings.TurnCeiling:
		return nil, callerError(ReasonAssessmentClosed)
	}

	entry, err := s.loadMemory(ctx, sess)
	if err != nil {
		return nil, err
	}
	uc := s.userContext(ctx, sess.UserID)

	// Patient turn.
	if err := s.appendTurn(ctx, sess.ID, RolePatient, text); err != nil {
		return nil, err
	}
	entry.AddTurn(string(RolePatient), text, s.now(), s.settings.HistoryWindow)
	entry.PatientTurns++
	entry.Collected.Merge(s.extractor.Extract(text))

	progress := s.evaluate(entry, uc)
	questions := assessment.Suggest(progress.CompletionScore, entry.Collected.Untouched(), s.settings.Rules)

	result := &TurnResult{
		SessionID:     sess.ID,
		Progress:      progress,
		NextQuestions: questions,
	}

	prompt := buildTurnPrompt(turnPrompt{
		Window:        entry.Turns,
		UserContext:   uc,
		Progress:      progress,
		NextQuestions: questions,
		JSONReply:     jsonReply,
	})

	genCtx, cancel := s.providerContext(ctx)
	raw, genErr := generate(genCtx, prompt)
	cancel()

	switch {
	case genErr != nil:
		s.log.Warn().Ctx(ctx).Err(genErr).Str("failure", string(KindProviderUnavailable)).Msg("generation failed, using fallback")
		result.Message = FallbackMessage
		result.Progress = zeroProgress(entry.Collected)
		result.NextQuestions = append([]string(nil), assessment.OrientingQuestions...)
		result.Failure = KindProviderUnavailable
	default:
		reply, err := parseReply(raw)
		if err != nil {
			s.log.Warn().Ctx(ctx).Err(err).Str("failure", string(KindMalformedOutput)).Msg("unusable provider reply")
			result.Message = FallbackMessage
			result.Failure = KindMalformedOutput
			break
		}
		if reply.AssessmentComplete != nil && *reply.AssessmentComplete && !progress.AssessmentComplete {
			s.log.Warn().Ctx(ctx).
				Str("event", "contract_violation").
				Int("score", progress.CompletionScore).
				Int("threshold", s.settings.Rules.CompletionThreshold).
				Msg("provider claimed completion below threshold, overriding")
		}
		result.Message = reply.Message
	}
	if result.Progress.AssessmentComplete {
		result.Message += "\n\n" + CompletionNote
	}

	// Attendant turn.
	if err := s.appendTurn(ctx, sess.ID, RoleAttendant, result.Message); err != nil {
		return nil, err
	}
	entry.AddTurn(string(RoleAttendant), result.Message, s.now(), s.settings.HistoryWindow)

	// Session state always follows the engine's own evaluation so it stays
	// derivable from the persisted transcript.
	sess.Stage = progress.Stage
	sess.Score = progress.CompletionScore
	sess.PatientTurns = entry.PatientTurns
	sess.CompletionReason = progress.CompletionReason
	sess.UpdatedAt = s.now()
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	entry.Stage = progress.Stage
	entry.Score = progress.CompletionScore
	s.saveMemory(ctx, entry, sess.Complete())

	s.log.Info().Ctx(ctx).
		Int("score", progress.CompletionScore).
		Str("stage", string(progress.Stage)).
		Bool("complete", progress.AssessmentComplete).
		Int("patient_turns", entry.PatientTurns).
		Msg("turn handled")

	return result, nil
}

// evaluate derives progress for the cached entry, keeping the stage
// monotonic and applying the turn ceiling.
func (s *service) evaluate(entry *memory.Entry, uc assessment.UserContext) assessment.Progress {
	p := assessment.Evaluate(entry.Collected, entry.TranscriptLen, uc, s.settings.Rules)
	p.Stage = assessment.Advance(entry.Stage, p.Stage)

	if !p.AssessmentComplete && entry.PatientTurns >= s.settings.TurnCeiling {
		p.AssessmentComplete = true
		p.CompletionReason = assessment.ReasonTurnCeiling
	}
	return p
}

func (s *service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.settings.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.settings.ProviderTimeout)
}

func zeroProgress(collected assessment.CollectedData) assessment.Progress {
	missing := collected.Missing()
	if missing == nil {
		missing = []string{}
	}
	return assessment.Progress{
		Stage:        assessment.StageInitial,
		MissingAreas: missing,
	}
}

func (s *service) Transcript(ctx context.Context, sessionID uuid.UUID) ([]Turn, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListTurns(ctx, sessionID)
}

func (s *service) Progress(ctx context.Context, sessionID uuid.UUID) (*assessment.Progress, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	entry, err := s.loadMemory(ctx, sess)
	if err != nil {
		return nil, err
	}
	return sessionProgress(sess, entry.Collected), nil
}

func sessionProgress(sess *Session, collected assessment.CollectedData) *assessment.Progress {
	missing := collected.Missing()
	if missing == nil {
		missing = []string{}
	}
	return &assessment.Progress{
		Stage:              sess.Stage,
		CompletionScore:    sess.Score,
		MissingAreas:       missing,
		AssessmentComplete: sess.Complete(),
		CompletionReason:   sess.CompletionReason,
	}
}

// ForceComplete is the manual completion override. Completing an already
// complete session is a no-op.
func (s *service) ForceComplete(ctx context.Context, sessionID uuid.UUID) (*assessment.Progress, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, callerError(ReasonSessionInactive)
	}
	entry, err := s.loadMemory(ctx, sess)
	if err != nil {
		return nil, err
	}

	if !sess.Complete() {
		sess.Stage = assessment.StageComplete
		sess.CompletionReason = assessment.ReasonManual
		sess.UpdatedAt = s.now()
		if err := s.repo.UpdateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("update session: %w", err)
		}
		ctx = logging.WithSessionID(ctx, sess.ID.String())
		s.log.Info().Ctx(ctx).Int("score", sess.Score).Msg("assessment completed manually")
	}

	if err := s.mem.Delete(ctx, sess.ID.String()); err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("failed to evict completed session")
	}
	return sessionProgress(sess, entry.Collected), nil
}

func (s *service) getSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("session", err)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *service) appendTurn(ctx context.Context, sessionID uuid.UUID, role Role, content string) error {
	t := &Turn{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendTurn(ctx, t); err != nil {
		return fmt.Errorf("append %s turn: %w", role, err)
	}
	return nil
}

// loadMemory returns the cached entry for sess, rebuilding it from the
// persisted transcript on a miss. Entries rebuilt for a closed session are
// not cached.
func (s *service) loadMemory(ctx context.Context, sess *Session) (*memory.Entry, error) {
	entry, err := s.mem.Get(ctx, sess.ID.String())
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("memory read failed, rebuilding from transcript")
	}
	if entry != nil {
		return entry, nil
	}

	turns, err := s.repo.ListTurns(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}

	entry = &memory.Entry{
		SessionID: sess.ID.String(),
		UserID:    sess.UserID,
		Stage:     sess.Stage,
		Score:     sess.Score,
	}
	for _, t := range turns {
		entry.AddTurn(string(t.Role), t.Content, t.CreatedAt, s.settings.HistoryWindow)
		if t.Role == RolePatient {
			entry.PatientTurns++
			entry.Collected.Merge(s.extractor.Extract(t.Content))
		}
	}

	if sess.Active && !sess.Complete() {
		if err := s.mem.Create(ctx, entry); err != nil {
			s.log.Warn().Ctx(ctx).Err(err).Msg("failed to cache rebuilt session")
		}
	}
	s.log.Debug().Ctx(ctx).Int("turns", len(turns)).Msg("session memory rebuilt")
	return entry, nil
}

// saveMemory writes entry back. A version conflict means another turn ran
// concurrently; the entry is evicted so the next turn replays the
// transcript. Completed sessions are evicted outright.
func (s *service) saveMemory(ctx context.Context, entry *memory.Entry, closed bool) {
	if closed {
		if err := s.mem.Delete(ctx, entry.SessionID); err != nil {
			s.log.Warn().Ctx(ctx).Err(err).Msg("failed to evict completed session")
		}
		return
	}

	err := s.mem.Update(ctx, entry)
	switch {
	case err == nil:
	case errors.Is(err, memory.ErrVersionConflict):
		s.log.Warn().Ctx(ctx).Str("event", "concurrent_turn").Msg("session memory changed during turn, evicting")
		_ = s.mem.Delete(ctx, entry.SessionID)
	case errors.Is(err, memory.ErrNotFound):
		if err := s.mem.Create(ctx, entry); err != nil {
			s.log.Warn().Ctx(ctx).Err(err).Msg("failed to cache session")
		}
	default:
		s.log.Warn().Ctx(ctx).Err(err).Msg("failed to update session memory")
		_ = s.mem.Delete(ctx, entry.SessionID)
	}
}

func (s *service) userContext(ctx context.Context, userID string) assessment.UserContext {
	if s.profiles == nil {
		return assessment.UserContext{UserID: userID}
	}
	uc, err := s.profiles.UserContext(ctx, userID)
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("profile lookup failed, continuing without context")
		return assessment.UserContext{UserID: userID}
	}
	uc.UserID = userID
	return uc
}
