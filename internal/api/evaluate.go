package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BittieTasks/trust/internal/approval"
	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/engine"
	"github.com/BittieTasks/trust/internal/fraud"
	"github.com/BittieTasks/trust/internal/verification"
	"github.com/BittieTasks/trust/internal/workerclass"
)

// Evaluator is satisfied by *engine.Engine[S].
type Evaluator[S engine.Snapshot] interface {
	Evaluate(ctx context.Context, s S) (engine.Outcome, error)
}

type WorkerEvaluator interface {
	Evaluate(ctx context.Context, g workerclass.Engagement) (workerclass.Result, error)
}

// Engines holds the decision engines the API exposes. A nil engine leaves
// its endpoint unmounted.
type Engines struct {
	Tasks    Evaluator[approval.Task]
	Requests Evaluator[fraud.Request]
	Profiles Evaluator[verification.Profile]
	Workers  WorkerEvaluator
}

type decisionResponse struct {
	Decision audit.Record `json:"decision"`
	Logged   bool         `json:"logged"`
}

type workerResponse struct {
	decisionResponse
	ContractorScore float64 `json:"contractor_score"`
	EmployeeScore   float64 `json:"employee_score"`
	Confidence      float64 `json:"confidence"`
}

type EvaluateHandler struct {
	engines Engines
	logger  *slog.Logger
}

func NewEvaluateHandler(engines Engines, logger *slog.Logger) *EvaluateHandler {
	return &EvaluateHandler{engines: engines, logger: logger}
}

// Task runs task approval.
// POST /api/v1/evaluate/task
func (h *EvaluateHandler) Task(w http.ResponseWriter, r *http.Request) {
	var t approval.Task
	if err := decodeJSON(w, r, &t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.engines.Tasks.Evaluate(r.Context(), t)
	h.respond(w, out, err)
}

// Request runs the fraud check against a described request.
// POST /api/v1/evaluate/request
func (h *EvaluateHandler) Request(w http.ResponseWriter, r *http.Request) {
	var req fraud.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.engines.Requests.Evaluate(r.Context(), req)
	h.respond(w, out, err)
}

// Verification grades a user profile.
// POST /api/v1/evaluate/verification
func (h *EvaluateHandler) Verification(w http.ResponseWriter, r *http.Request) {
	var p verification.Profile
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.engines.Profiles.Evaluate(r.Context(), p)
	h.respond(w, out, err)
}

// Worker classifies an engagement.
// POST /api/v1/evaluate/worker
func (h *EvaluateHandler) Worker(w http.ResponseWriter, r *http.Request) {
	var g workerclass.Engagement
	if err := decodeJSON(w, r, &g); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.engines.Workers.Evaluate(r.Context(), g)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workerResponse{
		decisionResponse: decisionResponse{Decision: res.Record, Logged: res.Logged},
		ContractorScore:  res.ContractorScore,
		EmployeeScore:    res.EmployeeScore,
		Confidence:       res.Confidence,
	})
}

func (h *EvaluateHandler) respond(w http.ResponseWriter, out engine.Outcome, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Decision: out.Record, Logged: out.Logged})
}

func (h *EvaluateHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrInvalidSnapshot) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.logger.Error("evaluation failed", "error", err)
	writeError(w, http.StatusInternalServerError, "evaluation failed")
}
