package consultation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medical-intake-agent/internal/logging"
)

// PDFRenderer renders a report document.
type PDFRenderer interface {
	RenderPDF(r Report) ([]byte, error)
}

type Handler struct {
	svc Service
	pdf PDFRenderer
	log zerolog.Logger
}

func NewHandler(svc Service, pdf PDFRenderer) *Handler {
	return &Handler{svc: svc, pdf: pdf, log: logging.Component("http")}
}

type StartSessionRequest struct {
	UserID string `json:"user_id"`
}

type TurnRequest struct {
	Text string `json:"text"`
}

type AnalyzeSymptomsRequest struct {
	Symptoms []string `json:"symptoms"`
}

// StreamEvent is one server-sent event of the streaming turn endpoint.
type StreamEvent struct {
	Type string `json:"type"` // "delta", "result" or "error"
	Data any    `json:"data"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   Kind   `json:"kind,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	sess, err := h.svc.StartSession(r.Context(), req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handler) HandleTurn(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.turnRequest(w, r)
	if !ok {
		return
	}

	res, err := h.svc.HandleTurn(r.Context(), id, req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) HandleTurnStream(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.turnRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(ev StreamEvent) {
		data, _ := json.Marshal(ev)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	res, err := h.svc.HandleTurnStream(r.Context(), id, req.Text, func(delta string) {
		send(StreamEvent{Type: "delta", Data: delta})
	})
	if err != nil {
		_, body := h.classify(err)
		send(StreamEvent{Type: "error", Data: body})
		return
	}
	send(StreamEvent{Type: "result", Data: res})
}

func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	turns, err := h.svc.Transcript(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turns)
}

func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.Progress(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) ForceComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	p, err := h.svc.ForceComplete(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) RequestReport(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	rep, err := h.svc.RequestReport(r.Context(), id, force)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	rep, err := h.svc.GetReport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) GetReportPDF(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}
	rep, err := h.svc.GetReport(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := h.pdf.RenderPDF(*rep)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="report_%s.pdf"`, rep.SessionID))
	_, _ = w.Write(data)
}

func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.svc.ListReports(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.LatestReport(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) ReportSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.ReportSummary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) AnalyzeSymptoms(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeSymptomsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return
	}

	analysis, err := h.svc.AnalyzeSymptoms(r.Context(), req.Symptoms)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/sessions", h.StartSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/turns", h.Transcript)
		r.Post("/turns", h.HandleTurn)
		r.Post("/turns/stream", h.HandleTurnStream)
		r.Get("/progress", h.Progress)
		r.Post("/complete", h.ForceComplete)
		r.Post("/report", h.RequestReport)
		r.Get("/report", h.GetReport)
		r.Get("/report.pdf", h.GetReportPDF)
	})
	r.Route("/users/{userID}/reports", func(r chi.Router) {
		r.Get("/", h.ListReports)
		r.Get("/latest", h.LatestReport)
		r.Get("/summary", h.ReportSummary)
	})
	r.Post("/symptoms/analyze", h.AnalyzeSymptoms)
}

func (h *Handler) turnRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, TurnRequest, bool) {
	id, ok := sessionID(w, r)
	if !ok {
		return uuid.Nil, TurnRequest{}, false
	}
	var req TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request"})
		return uuid.Nil, TurnRequest{}, false
	}
	return id, req, true
}

func sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

// classify maps an engine error onto an HTTP status and body.
func (h *Handler) classify(err error) (int, errorResponse) {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}

	body := errorResponse{Error: e.Error(), Kind: e.Kind, Reason: e.Reason}
	switch e.Kind {
	case KindCallerError:
		switch e.Reason {
		case ReasonEmptyText, ReasonMissingUser, ReasonNoSymptoms:
			return http.StatusBadRequest, body
		case ReasonSessionInactive, ReasonAssessmentClosed:
			return http.StatusConflict, body
		}
		return http.StatusUnprocessableEntity, body
	case KindNotFound:
		return http.StatusNotFound, body
	case KindConflict:
		return http.StatusConflict, body
	case KindProviderUnavailable, KindMalformedOutput:
		return http.StatusBadGateway, body
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error"}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := h.classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Ctx(r.Context()).Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
