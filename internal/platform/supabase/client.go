// Package supabase reads user profiles and hearing-test results from a
// Supabase project. The engine never writes to these tables.
package supabase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/supabase-community/supabase-go"

	"medical-intake-agent/internal/assessment"
	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/logging"
)

// Config holds Supabase connection configuration.
type Config struct {
	URL               string
	APIKey            string
	ProfilesTable     string        // Default: profiles
	HearingTestsTable string        // Default: hearing_tests
	CacheTTL          time.Duration // Default: 5 minutes
}

// rowSource fetches raw rows for one user.
type rowSource interface {
	profiles(ctx context.Context, userID string) ([]profileRow, error)
	hearingTests(ctx context.Context, userID string) ([]hearingTestRow, error)
}

// Client implements consultation.ProfileProvider and
// consultation.HearingTestProvider with a per-user TTL cache.
type Client struct {
	src      rowSource
	cacheTTL time.Duration
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.RWMutex
	profiles map[string]cacheEntry[assessment.UserContext]
	tests    map[string]cacheEntry[[]consultation.HearingTest]
}

var (
	_ consultation.ProfileProvider     = (*Client)(nil)
	_ consultation.HearingTestProvider = (*Client)(nil)
)

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

// New creates a client backed by the Supabase REST API.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if cfg.ProfilesTable == "" {
		cfg.ProfilesTable = "profiles"
	}
	if cfg.HearingTestsTable == "" {
		cfg.HearingTestsTable = "hearing_tests"
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return newClient(&restSource{
		client:            client,
		profilesTable:     cfg.ProfilesTable,
		hearingTestsTable: cfg.HearingTestsTable,
	}, cfg.CacheTTL), nil
}

func newClient(src rowSource, ttl time.Duration) *Client {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &Client{
		src:      src,
		cacheTTL: ttl,
		now:      time.Now,
		log:      logging.Component("supabase"),
		profiles: make(map[string]cacheEntry[assessment.UserContext]),
		tests:    make(map[string]cacheEntry[[]consultation.HearingTest]),
	}
}

// UserContext returns the user's profile. A user without a profile row
// yields an empty context.
func (c *Client) UserContext(ctx context.Context, userID string) (assessment.UserContext, error) {
	if uc, ok := lookup(c, c.profiles, userID); ok {
		return uc, nil
	}

	rows, err := c.src.profiles(ctx, userID)
	if err != nil {
		return assessment.UserContext{}, fmt.Errorf("failed to get profile: %w", err)
	}

	uc := assessment.UserContext{UserID: userID}
	if len(rows) > 0 {
		uc = rows[0].toUserContext(userID)
	} else {
		c.log.Debug().Ctx(ctx).Msg("no profile found")
	}

	store(c, c.profiles, userID, uc)
	return uc, nil
}

// HearingTests returns the user's hearing tests, most recent first.
func (c *Client) HearingTests(ctx context.Context, userID string) ([]consultation.HearingTest, error) {
	if tests, ok := lookup(c, c.tests, userID); ok {
		return tests, nil
	}

	rows, err := c.src.hearingTests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get hearing tests: %w", err)
	}

	tests := make([]consultation.HearingTest, 0, len(rows))
	for _, r := range rows {
		tests = append(tests, r.toHearingTest())
	}
	sort.SliceStable(tests, func(i, j int) bool {
		return tests[i].TakenAt.After(tests[j].TakenAt)
	})

	store(c, c.tests, userID, tests)
	return tests, nil
}

// Invalidate drops cached data for userID.
func (c *Client) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.profiles, userID)
	delete(c.tests, userID)
}

// Close is a no-op; the REST client holds no connections.
func (c *Client) Close() error {
	return nil
}

func lookup[T any](c *Client, m map[string]cacheEntry[T], key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var zero T
	e, ok := m[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return zero, false
	}
	return e.value, true
}

func store[T any](c *Client, m map[string]cacheEntry[T], key string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m[key] = cacheEntry[T]{value: v, expiresAt: c.now().Add(c.cacheTTL)}
}

type restSource struct {
	client            *supabase.Client
	profilesTable     string
	hearingTestsTable string
}

func (s *restSource) profiles(_ context.Context, userID string) ([]profileRow, error) {
	var rows []profileRow
	_, err := s.client.From(s.profilesTable).
		Select("*", "", false).
		Eq("id", userID).
		ExecuteTo(&rows)
	return rows, err
}

func (s *restSource) hearingTests(_ context.Context, userID string) ([]hearingTestRow, error) {
	var rows []hearingTestRow
	_, err := s.client.From(s.hearingTestsTable).
		Select("*", "", false).
		Eq("user_id", userID).
		ExecuteTo(&rows)
	return rows, err
}

// profileRow mirrors the profiles table.
type profileRow struct {
	ID             string   `json:"id"`
	FullName       string   `json:"full_name"`
	Email          string   `json:"email"`
	Age            int      `json:"age"`
	Gender         string   `json:"gender"`
	MedicalHistory []string `json:"medical_history"`
	Notes          string   `json:"notes"`
}

func (r profileRow) toUserContext(userID string) assessment.UserContext {
	var history []string
	for _, h := range r.MedicalHistory {
		if h = strings.TrimSpace(h); h != "" {
			history = append(history, h)
		}
	}
	return assessment.UserContext{
		UserID:         userID,
		Name:           strings.TrimSpace(r.FullName),
		Email:          r.Email,
		Age:            max(r.Age, 0),
		Gender:         r.Gender,
		MedicalHistory: history,
		Notes:          strings.TrimSpace(r.Notes),
	}
}

// hearingTestRow mirrors the hearing_tests table.
type hearingTestRow struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	LeftEarScore  float64   `json:"left_ear_score"`
	RightEarScore float64   `json:"right_ear_score"`
	OverallScore  float64   `json:"overall_score"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r hearingTestRow) toHearingTest() consultation.HearingTest {
	return consultation.HearingTest{
		ID:            r.ID,
		UserID:        r.UserID,
		LeftEarScore:  r.LeftEarScore,
		RightEarScore: r.RightEarScore,
		OverallScore:  r.OverallScore,
		TakenAt:       r.CreatedAt,
	}
}
