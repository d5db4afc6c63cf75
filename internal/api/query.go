// Package api is the hosting layer's HTTP and MCP surface over the
// retrieval workflow engine (internal/orchestrator). It replaces the
// teacher's OpenAI-compatible chat-completions passthrough and ingestion
// endpoints with the single operation this engine actually performs:
// running a query through the workflow and returning ranked contexts.
// Router wiring, health check, and bearer-auth middleware follow the
// teacher's openai.go/auth.go conventions (chi router, httpError JSON
// envelope).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corvidai/retrieval-core/internal/orchestrator"
	"github.com/corvidai/retrieval-core/internal/workflow"
)

const maxRequestBodySize = 1 << 20 // 1MB

// QueryOrchestrator is the subset of *orchestrator.Orchestrator the HTTP
// layer depends on, so handlers can be tested against a fake.
type QueryOrchestrator interface {
	ExecuteWorkflow(ctx context.Context, req workflow.QueryRequest, user workflow.UserContext) ([]workflow.Context, workflow.Metrics, error)
}

var _ QueryOrchestrator = (*orchestrator.Orchestrator)(nil)

// NewRouter returns an http.Handler implementing the retrieval engine's
// public surface: POST /v1/query and GET /healthz.
func NewRouter(o QueryOrchestrator) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", handleHealthz)
	r.Post("/v1/query", handleQuery(o))
	return r
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// queryRequestBody is the wire shape of POST /v1/query.
type queryRequestBody struct {
	Text     string `json:"text"`
	TopK     int    `json:"topK"`
	UseCache *bool  `json:"useCache"`
	UserID   string `json:"userId"`
	Role     string `json:"role"`
	Email    string `json:"email"`
}

type queryResponseBody struct {
	Contexts []workflow.Context `json:"contexts"`
	Metrics  workflow.Metrics   `json:"metrics"`
}

func handleQuery(o QueryOrchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var body queryRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid request body: %v", err)
			return
		}

		useCache := true
		if body.UseCache != nil {
			useCache = *body.UseCache
		}

		req := workflow.QueryRequest{
			Text:     body.Text,
			Mode:     workflow.ModeRetrievalOnly,
			TopK:     body.TopK,
			UseCache: useCache,
		}
		user := workflow.UserContext{
			UserID: body.UserID,
			Role:   workflow.Role(body.Role),
			Email:  body.Email,
		}
		if user.Role == "" {
			user.Role = workflow.RoleUser
		}

		contexts, metrics, err := o.ExecuteWorkflow(r.Context(), req, user)
		if err != nil {
			writeWorkflowError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(queryResponseBody{Contexts: contexts, Metrics: metrics})
	}
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	kind, ok := workflow.KindOf(err)
	if !ok {
		httpError(w, http.StatusInternalServerError, "internal_error", "%v", err)
		return
	}
	switch kind {
	case workflow.KindInvalidInput:
		httpError(w, http.StatusBadRequest, string(kind), "%v", err)
	case workflow.KindAccessDenied, workflow.KindFilterBuildFailed:
		httpError(w, http.StatusForbidden, string(kind), "%v", err)
	case workflow.KindCancelled, workflow.KindDeadlineExceeded:
		httpError(w, http.StatusGatewayTimeout, string(kind), "%v", err)
	default:
		httpError(w, http.StatusBadGateway, string(kind), "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
