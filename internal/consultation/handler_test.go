package consultation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-intake-agent/internal/assessment"
)

type fakePDF struct{}

func (fakePDF) RenderPDF(r Report) ([]byte, error) {
	return []byte("%PDF-" + r.Title), nil
}

func newTestRouter(env *testEnv) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, NewHandler(env.svc, fakePDF{}))
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestHandler_SessionLifecycle(t *testing.T) {
	env := newTestEnv()
	h := newTestRouter(env)

	rec := do(t, h, http.MethodPost, "/sessions", `{"user_id": "user-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sess Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sess))
	assert.True(t, sess.Active)
	base := "/sessions/" + sess.ID.String()

	rec = do(t, h, http.MethodPost, base+"/turns", `{"text": "I have had a headache."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var res TurnResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "Could you tell me more?", res.Message)
	assert.Equal(t, 18, res.Progress.CompletionScore)

	rec = do(t, h, http.MethodGet, base+"/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p assessment.Progress
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, assessment.StageInitial, p.Stage)

	rec = do(t, h, http.MethodGet, base+"/turns", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var turns []Turn
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&turns))
	require.Len(t, turns, 2)
	assert.Equal(t, RolePatient, turns[0].Role)
	assert.Equal(t, RoleAttendant, turns[1].Role)

	rec = do(t, h, http.MethodPost, base+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, base+"/turns", `{"text": "one more"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, ReasonAssessmentClosed, decodeError(t, rec).Reason)
}

func TestHandler_ErrorStatus(t *testing.T) {
	env := newTestEnv()
	h := newTestRouter(env)
	id := startSession(t, env)
	base := "/sessions/" + id.String()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantReason string
	}{
		{"missing user", http.MethodPost, "/sessions", `{}`, http.StatusBadRequest, ReasonMissingUser},
		{"malformed body", http.MethodPost, base + "/turns", `{`, http.StatusBadRequest, ""},
		{"empty text", http.MethodPost, base + "/turns", `{"text": "  "}`, http.StatusBadRequest, ReasonEmptyText},
		{"invalid id", http.MethodGet, "/sessions/not-a-uuid/progress", "", http.StatusBadRequest, ""},
		{"unknown session", http.MethodPost, "/sessions/" + uuid.NewString() + "/turns", `{"text": "hi"}`, http.StatusNotFound, "session"},
		{"report too early", http.MethodPost, base + "/report", "", http.StatusUnprocessableEntity, ReasonReportTooEarly},
		{"no report yet", http.MethodGet, base + "/report", "", http.StatusNotFound, "report"},
		{"no symptoms", http.MethodPost, "/symptoms/analyze", `{"symptoms": []}`, http.StatusBadRequest, ReasonNoSymptoms},
		{"no reports for user", http.MethodGet, "/users/nobody/reports/latest", "", http.StatusNotFound, "report"},
		{"no summary for user", http.MethodGet, "/users/nobody/reports/summary", "", http.StatusNotFound, "report"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantReason, decodeError(t, rec).Reason)
		})
	}
}

func TestHandler_Report(t *testing.T) {
	env := newTestEnv()
	h := newTestRouter(env)
	id := startSession(t, env)
	sendTurns(t, env.svc, id, scenario...)
	base := "/sessions/" + id.String()

	env.synth.err = errProviderDown
	rec := do(t, h, http.MethodPost, base+"/report", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, KindProviderUnavailable, decodeError(t, rec).Kind)
	assert.Equal(t, 1, env.synth.calls)

	env.synth.err = nil
	rec = do(t, h, http.MethodPost, base+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var rep Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rep))
	assert.True(t, rep.Complete)
	assert.Equal(t, "summary", rep.Sections.ExecutiveSummary)
	assert.Equal(t, 2, env.synth.calls)

	rec = do(t, h, http.MethodPost, base+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.synth.calls, "complete report is served without synthesis")

	rec = do(t, h, http.MethodGet, base+"/report.pdf", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "%PDF-"))

	rec = do(t, h, http.MethodPost, base+"/report?force=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, env.synth.calls)
}

func TestHandler_TurnStream(t *testing.T) {
	env := newTestEnv("How long has it been going on?")
	h := newTestRouter(env)
	id := startSession(t, env)

	rec := do(t, h, http.MethodPost, "/sessions/"+id.String()+"/turns/stream", `{"text": "I have had a headache."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	var events []StreamEvent
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		payload, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var ev StreamEvent
		require.NoError(t, json.Unmarshal([]byte(payload), &ev))
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	var streamed strings.Builder
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, "delta", ev.Type)
		streamed.WriteString(ev.Data.(string))
	}
	assert.Equal(t, "How long has it been going on?", streamed.String())
	assert.Equal(t, "result", events[len(events)-1].Type)
}

func TestHandler_ReportHistory(t *testing.T) {
	env := newTestEnv()
	h := newTestRouter(env)
	id := startSession(t, env)
	sendTurns(t, env.svc, id, scenario...)

	rec := do(t, h, http.MethodPost, "/sessions/"+id.String()+"/report", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/users/user-1/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var reports []Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&reports))
	require.Len(t, reports, 1)
	assert.Equal(t, id, reports[0].SessionID)

	rec = do(t, h, http.MethodGet, "/users/user-1/reports/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var latest Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&latest))
	assert.Equal(t, reports[0].ID, latest.ID)

	rec = do(t, h, http.MethodGet, "/users/user-1/reports/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var sum ReportSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sum))
	assert.Equal(t, 1, sum.TotalReports)
	assert.Equal(t, 100.0, sum.CompletionRate)
	assert.Equal(t, 1, sum.StageDistribution[assessment.StageReadyForSummary])
	assert.NotEmpty(t, sum.Recommendations)

	rec = do(t, h, http.MethodGet, "/users/nobody/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandler_AnalyzeSymptoms(t *testing.T) {
	env := newTestEnv()
	h := newTestRouter(env)

	rec := do(t, h, http.MethodPost, "/symptoms/analyze", `{"symptoms": ["headache", "tinnitus"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var got SymptomAnalysis
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, []string{"headache", "tinnitus"}, got.Symptoms)
	assert.Equal(t, "General information.", got.Analysis)

	env.an.err = errProviderDown
	rec = do(t, h, http.MethodPost, "/symptoms/analyze", `{"symptoms": ["headache"]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, KindProviderUnavailable, decodeError(t, rec).Kind)
}
