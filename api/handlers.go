package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"phishlens/ai"
	"phishlens/vetting"
)

// Classifier is the engine surface the handlers need.
type Classifier interface {
	Classify(ctx context.Context, raw string) (vetting.Result, error)
}

// Explainer narrates a verdict.
type Explainer interface {
	Explain(ctx context.Context, res vetting.Result) ai.Explanation
}

type Handler struct {
	engine    Classifier
	explainer Explainer
}

// NewHandler builds the handlers. A nil explainer serves the built-in
// explanation text.
func NewHandler(engine Classifier, explainer Explainer) *Handler {
	if explainer == nil {
		explainer = ai.NewExplainer(nil)
	}
	return &Handler{engine: engine, explainer: explainer}
}

// Legacy status codes consumed by the browser extension.
const (
	CodeKnownSafe     = "0"
	CodePhishing      = "-1"
	CodeIndeterminate = "1"
)

// LegacyCode encodes a verdict for the legacy surface. ClassifierUnavailable
// has no legacy code.
func LegacyCode(v vetting.Verdict) (string, bool) {
	switch v {
	case vetting.KnownSafe:
		return CodeKnownSafe, true
	case vetting.DefinitePhishing:
		return CodePhishing, true
	case vetting.Indeterminate:
		return CodeIndeterminate, true
	default:
		return "", false
	}
}

// LegacyPredictHandler serves the form endpoint: field URL in, bare status
// code out.
func (h *Handler) LegacyPredictHandler(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.FormValue("URL"))
	if raw == "" {
		http.Error(w, "URL required", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Classify(r.Context(), raw)
	code, ok := LegacyCode(res.Verdict)
	if err != nil || !ok {
		log.Printf("[API] %s: %v", raw, err)
		http.Error(w, "classifier unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(code))
}

type ClassifyRequest struct {
	URL string `json:"url"`
}

type ClassifyResponse struct {
	ID                string          `json:"id"`
	URL               string          `json:"url"`
	Verdict           string          `json:"verdict"`
	Code              string          `json:"code,omitempty"`
	Stage             string          `json:"stage"`
	ClassifierInvoked bool            `json:"classifier_invoked"`
	Features          map[string]int  `json:"features,omitempty"`
	Vector            []int           `json:"vector,omitempty"`
	ElapsedMs         int64           `json:"elapsed_ms"`
	Explanation       *ai.Explanation `json:"explanation,omitempty"`
	Error             string          `json:"error,omitempty"`
	Timestamp         string          `json:"timestamp"`
}

// ClassifyHandler is the structured JSON endpoint.
func (h *Handler) ClassifyHandler(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, false)
}

// ExplainHandler is ClassifyHandler plus a narrative explanation of the
// verdict.
func (h *Handler) ExplainHandler(w http.ResponseWriter, r *http.Request) {
	h.classify(w, r, true)
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request, explain bool) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeJSONError(w, "url required", http.StatusBadRequest)
		return
	}

	res, err := h.engine.Classify(r.Context(), req.URL)
	resp := ClassifyResponse{
		ID:                RequestID(r.Context()),
		URL:               req.URL,
		Verdict:           res.Verdict.String(),
		Stage:             res.Stage,
		ClassifierInvoked: res.ClassifierInvoked,
		ElapsedMs:         res.Elapsed.Milliseconds(),
		Timestamp:         time.Now().Format(time.RFC3339),
	}
	resp.Code, _ = LegacyCode(res.Verdict)
	if res.Features != nil {
		resp.Features = res.Features.Named()
		resp.Vector = res.Features.Slice()
	}

	if explain {
		exp := h.explainer.Explain(r.Context(), res)
		resp.Explanation = &exp
	}

	status := http.StatusOK
	if err != nil {
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
		if !errors.Is(err, vetting.ErrClassifierUnavailable) {
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, resp)
}

func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
