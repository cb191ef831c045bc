package consultation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"medical-intake-agent/internal/logging"
)

// RequestReport synthesizes the session report. A complete report is
// returned unchanged unless force is set. On synthesis failure nothing is
// persisted and a typed error is returned.
func (s *service) RequestReport(ctx context.Context, sessionID uuid.UUID, force bool) (*Report, error) {
	sess, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithUserID(logging.WithSessionID(ctx, sess.ID.String()), sess.UserID)

	existing, err := s.repo.GetReport(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if existing != nil && existing.Complete && !force {
		return existing, nil
	}

	entry, err := s.loadMemory(ctx, sess)
	if err != nil {
		return nil, err
	}
	if entry.PatientTurns < s.settings.MinReportTurns {
		return nil, callerError(ReasonReportTooEarly)
	}

	uc := s.userContext(ctx, sess.UserID)
	tests := s.hearingTests(ctx, sess.UserID)
	progress := sessionProgress(sess, entry.Collected)

	synthCtx, cancel := s.providerContext(ctx)
	sections, err := s.synth.Synthesize(synthCtx, SynthesisInput{
		SessionID:    sess.ID,
		Collected:    entry.Collected,
		HearingTests: tests,
		UserContext:  uc,
		Progress:     *progress,
	})
	cancel()
	if err != nil {
		kind := KindOf(err)
		if kind == "" {
			kind = KindProviderUnavailable
		}
		s.log.Error().Ctx(ctx).Err(err).Str("failure", string(kind)).Msg("report synthesis failed")
		return nil, &Error{Kind: kind, Reason: "report_synthesis", Err: err}
	}

	now := s.now()
	rep := &Report{
		ID:            uuid.New(),
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		Title:         fmt.Sprintf("Intake assessment %s", now.Format("2006-01-02")),
		Sections:      sections,
		CollectedData: entry.Collected.Clone(),
		HearingTests:  tests,
		UserContext:   uc,
		Stage:         sess.Stage,
		Score:         sess.Score,
		Complete:      sess.Complete(),
		GeneratedAt:   now,
	}
	if existing != nil {
		rep.ID = existing.ID
		rep.CreatedAt = existing.CreatedAt
	}
	if err := s.repo.PutReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("put report: %w", err)
	}
	s.log.Info().Ctx(ctx).Bool("complete", rep.Complete).Bool("forced", force).Msg("report generated")

	if s.publisher != nil && rep.Complete {
		if err := s.publisher.Publish(ctx, *rep); err != nil {
			s.log.Warn().Ctx(ctx).Err(err).Msg("report delivery failed")
		}
	}
	return rep, nil
}

func (s *service) GetReport(ctx context.Context, sessionID uuid.UUID) (*Report, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rep, err := s.repo.GetReport(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	if rep == nil {
		return nil, notFound("report", ErrNotFound)
	}
	return rep, nil
}

func (s *service) hearingTests(ctx context.Context, userID string) []HearingTest {
	if s.hearing == nil {
		return []HearingTest{}
	}
	tests, err := s.hearing.HearingTests(ctx, userID)
	if err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Msg("hearing test lookup failed, continuing without results")
		return []HearingTest{}
	}
	if tests == nil {
		tests = []HearingTest{}
	}
	return tests
}
