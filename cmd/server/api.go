package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/montybuilt/MPS-sub000/internal/backend"
	"github.com/montybuilt/MPS-sub000/internal/live"
	"github.com/montybuilt/MPS-sub000/internal/progress"
	"github.com/montybuilt/MPS-sub000/internal/quiz"
	"github.com/montybuilt/MPS-sub000/internal/report"
	"github.com/montybuilt/MPS-sub000/internal/session"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 2 * time.Second
	xlsxType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

type api struct {
	ctrl   *session.Controller
	hub    *live.Hub
	checks []readinessCheck
}

// newMux creates the HTTP router with health, metrics and session endpoints.
func newMux(a *api) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/session", a.handleSession)
	mux.HandleFunc("GET /api/kpis", a.handleKPIs)
	mux.HandleFunc("GET /api/tags", a.handleTags)
	mux.HandleFunc("GET /api/completed", a.handleCompleted)
	mux.HandleFunc("GET /api/scoreboard", a.handleScoreboard)
	mux.HandleFunc("GET /api/dashboard", a.handleDashboard)
	mux.HandleFunc("GET /api/next", a.handleNext)
	mux.HandleFunc("GET /api/question", a.handleQuestion)
	mux.HandleFunc("POST /api/answer", a.handleAnswer)
	mux.HandleFunc("POST /api/flush", a.handleFlush)
	mux.HandleFunc("GET /api/report.xlsx", a.handleReport)
	mux.Handle("GET /ws/progress", a.hub.Handler(func(*http.Request) string {
		owner, _ := a.ctrl.Owner()
		return owner
	}))
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *api) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	for _, c := range a.checks {
		if err := c.check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", c.name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "check": c.name})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type sessionRequest struct {
	ProfileOwner string `json:"profileOwner"`
}

func (a *api) handleSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ProfileOwner == "" {
		writeError(w, http.StatusBadRequest, "profileOwner is required")
		return
	}

	setup, err := a.ctrl.SetupSession(r.Context(), req.ProfileOwner)
	if errors.Is(err, session.ErrProfileUnavailable) && setup != nil {
		// Cached progress is still usable; Stale tells the client.
		writeJSON(w, http.StatusOK, setup)
		return
	}
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (a *api) handleKPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := a.ctrl.KPIs()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

func (a *api) handleTags(w http.ResponseWriter, r *http.Request) {
	if content := r.URL.Query().Get("content"); content != "" {
		perf, err := a.ctrl.TagPerformance(content)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, perf)
		return
	}
	tags, err := a.ctrl.TagSummary()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

func (a *api) handleCompleted(w http.ResponseWriter, r *http.Request) {
	completed, err := a.ctrl.Completed()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]progress.Set{"completedCurriculums": completed})
}

func (a *api) handleScoreboard(w http.ResponseWriter, r *http.Request) {
	board, err := a.ctrl.Scoreboard()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (a *api) handleDashboard(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("user")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	d, err := a.ctrl.Dashboard(r.Context(), owner)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *api) handleNext(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	content, curriculumID := q.Get("content"), q.Get("curriculum")
	if curriculumID == "" {
		writeError(w, http.StatusBadRequest, "curriculum is required")
		return
	}
	qid, err := a.ctrl.NextQuestion(r.Context(), content, curriculumID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"currentContent":    content,
		"currentCurriculum": curriculumID,
		"currentQuestion":   qid,
	})
}

func (a *api) handleQuestion(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	question, err := a.ctrl.Question(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, question)
}

func (a *api) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var ans quiz.Answer
	if !decode(w, r, &ans) {
		return
	}
	res, err := a.ctrl.SubmitAnswer(r.Context(), ans)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleFlush starts a session write-back and returns without waiting for
// it.
func (a *api) handleFlush(w http.ResponseWriter, r *http.Request) {
	if _, err := a.ctrl.Owner(); err != nil {
		writeErr(w, err)
		return
	}
	ctx := context.WithoutCancel(r.Context())
	go func() {
		_ = a.ctrl.Flush(ctx)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "flushing"})
}

func (a *api) handleReport(w http.ResponseWriter, r *http.Request) {
	owner, err := a.ctrl.Owner()
	if err != nil {
		writeErr(w, err)
		return
	}
	kpis, err := a.ctrl.KPIs()
	if err != nil {
		writeErr(w, err)
		return
	}
	completed, err := a.ctrl.Completed()
	if err != nil {
		writeErr(w, err)
		return
	}
	summary, err := a.ctrl.TagSummary()
	if err != nil {
		writeErr(w, err)
		return
	}
	tags := make(map[string][]progress.TagPerformance, len(summary))
	for contentID := range summary {
		perf, err := a.ctrl.TagPerformance(contentID)
		if err != nil {
			writeErr(w, err)
			return
		}
		tags[contentID] = perf
	}

	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="progress-`+owner+`.xlsx"`)
	if err := report.Write(w, report.Workbook{
		Owner:     owner,
		Generated: time.Now(),
		KPIs:      kpis,
		Completed: completed,
		Tags:      tags,
	}); err != nil {
		slog.Error("writing report failed", "user", owner, "error", err)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeErr maps controller errors to a status and a message safe to show
// the learner.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		writeError(w, http.StatusConflict, "no active session, load a profile first")
	case errors.Is(err, session.ErrSubmitInProgress):
		writeError(w, http.StatusTooManyRequests, "an answer is already being submitted")
	case errors.Is(err, session.ErrInvalidAnswer):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, session.ErrProfileUnavailable), errors.Is(err, backend.ErrInvalidPayload):
		writeError(w, http.StatusBadGateway, "the learning platform is unavailable, try again later")
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response failed", "error", err)
	}
}
