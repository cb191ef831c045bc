package consultation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres error codes the repository maps onto engine errors.
const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Repository is the persistence store. Turns are returned in insertion
// order.
type Repository interface {
	// CreateSession inserts s and deactivates every other active session of
	// the same user, returning the IDs it deactivated.
	CreateSession(ctx context.Context, s *Session) ([]uuid.UUID, error)
	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	UpdateSession(ctx context.Context, s *Session) error

	AppendTurn(ctx context.Context, t *Turn) error
	ListTurns(ctx context.Context, sessionID uuid.UUID) ([]Turn, error)

	// GetReport returns nil when the session has no report yet.
	GetReport(ctx context.Context, sessionID uuid.UUID) (*Report, error)
	PutReport(ctx context.Context, r *Report) error
	// ListReports returns a user's reports, most recently created first.
	ListReports(ctx context.Context, userID string) ([]Report, error)
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) CreateSession(ctx context.Context, s *Session) ([]uuid.UUID, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx,
		`UPDATE sessions SET active = FALSE, updated_at = $2 WHERE user_id = $1 AND active RETURNING id`,
		s.UserID, s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("deactivate sessions: %w", err)
	}
	var deactivated []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		deactivated = append(deactivated, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO sessions (id, user_id, active, stage, score, patient_turns, completion_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = tx.ExecContext(ctx, query,
		s.ID, s.UserID, s.Active, s.Stage, s.Score, s.PatientTurns, s.CompletionReason, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return nil, mapPgError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, mapPgError(err)
	}
	return deactivated, nil
}

func (r *postgresRepo) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT id, user_id, active, stage, score, patient_turns, completion_reason, created_at, updated_at FROM sessions WHERE id = $1`

	var s Session
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.Active,
		&s.Stage,
		&s.Score,
		&s.PatientTurns,
		&s.CompletionReason,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *postgresRepo) UpdateSession(ctx context.Context, s *Session) error {
	query := `
		UPDATE sessions SET
			active = $2,
			stage = $3,
			score = $4,
			patient_turns = $5,
			completion_reason = $6,
			updated_at = $7
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		s.ID, s.Active, s.Stage, s.Score, s.PatientTurns, s.CompletionReason, s.UpdatedAt)
	if err != nil {
		return mapPgError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepo) AppendTurn(ctx context.Context, t *Turn) error {
	query := `INSERT INTO turns (id, session_id, role, content, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.SessionID, t.Role, t.Content, t.CreatedAt)
	return mapPgError(err)
}

func (r *postgresRepo) ListTurns(ctx context.Context, sessionID uuid.UUID) ([]Turn, error) {
	query := `SELECT id, session_id, role, content, created_at FROM turns WHERE session_id = $1 ORDER BY created_at, seq`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

const reportColumns = `id, session_id, user_id, title, sections, collected_data, hearing_tests, user_context,
	stage, score, complete, generated_at, created_at, updated_at`

func (r *postgresRepo) GetReport(ctx context.Context, sessionID uuid.UUID) (*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE session_id = $1`

	rep, err := scanReport(r.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rep, nil
}

func (r *postgresRepo) ListReports(ctx context.Context, userID string) ([]Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *rep)
	}
	return reports, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var rep Report
	var sectionsJSON, collectedJSON, hearingJSON, contextJSON []byte
	err := row.Scan(
		&rep.ID,
		&rep.SessionID,
		&rep.UserID,
		&rep.Title,
		&sectionsJSON,
		&collectedJSON,
		&hearingJSON,
		&contextJSON,
		&rep.Stage,
		&rep.Score,
		&rep.Complete,
		&rep.GeneratedAt,
		&rep.CreatedAt,
		&rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{sectionsJSON, &rep.Sections},
		{collectedJSON, &rep.CollectedData},
		{hearingJSON, &rep.HearingTests},
		{contextJSON, &rep.UserContext},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
	}
	return &rep, nil
}

func (r *postgresRepo) PutReport(ctx context.Context, rep *Report) error {
	sectionsJSON, err := json.Marshal(rep.Sections)
	if err != nil {
		return err
	}
	collectedJSON, err := json.Marshal(rep.CollectedData)
	if err != nil {
		return err
	}
	hearingJSON, err := json.Marshal(rep.HearingTests)
	if err != nil {
		return err
	}
	contextJSON, err := json.Marshal(rep.UserContext)
	if err != nil {
		return err
	}

	if rep.CreatedAt.IsZero() {
		rep.CreatedAt = time.Now()
	}
	rep.UpdatedAt = time.Now()

	query := `
		INSERT INTO reports (id, session_id, user_id, title, sections, collected_data, hearing_tests, user_context,
			stage, score, complete, generated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO UPDATE SET
			title = $4,
			sections = $5,
			collected_data = $6,
			hearing_tests = $7,
			user_context = $8,
			stage = $9,
			score = $10,
			complete = $11,
			generated_at = $12,
			updated_at = $14
	`
	_, err = r.db.ExecContext(ctx, query,
		rep.ID, rep.SessionID, rep.UserID, rep.Title, sectionsJSON, collectedJSON, hearingJSON, contextJSON,
		rep.Stage, rep.Score, rep.Complete, rep.GeneratedAt, rep.CreatedAt, rep.UpdatedAt)
	return mapPgError(err)
}

func mapPgError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pgErrUniqueViolation:
		return &Error{Kind: KindConflict, Reason: pqErr.Constraint, Err: err}
	case pgErrForeignKeyViolation:
		return &Error{Kind: KindNotFound, Reason: pqErr.Constraint, Err: err}
	}
	return err
}
