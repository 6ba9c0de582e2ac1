package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Remote calls a model server that hosts the trained artifact.
//
//	POST {base}/predict  {"features":[...]}  ->  {"prediction":0|1}
//	GET  {base}/healthz  ->  2xx when the model is loaded
type Remote struct {
	BaseURL string
	Client  *http.Client
}

type predictRequest struct {
	Features []int `json:"features"`
}

type predictResponse struct {
	Prediction *int   `json:"prediction"`
	Error      string `json:"error,omitempty"`
}

// NewRemote connects to the model server and checks it once. A server that
// is not ready is a startup failure.
func NewRemote(ctx context.Context, baseURL string, timeout time.Duration) (*Remote, error) {
	r := &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
	if err := r.health(ctx); err != nil {
		return nil, fmt.Errorf("%w: model server %s: %v", ErrArtifact, r.BaseURL, err)
	}
	log.Printf("[MODEL] Using remote model server %s", r.BaseURL)
	return r, nil
}

func (r *Remote) health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("health status %s", resp.Status)
	}
	return nil
}

// Predict sends one vector. Transport errors, non-200 responses and
// malformed bodies are all errors.
func (r *Remote) Predict(ctx context.Context, features []int) (int, error) {
	body, err := json.Marshal(predictRequest{Features: features})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode prediction (status %s): %w", resp.Status, err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("model server status %s: %s", resp.Status, out.Error)
	}
	if out.Prediction == nil {
		return 0, fmt.Errorf("model server returned no prediction")
	}
	return *out.Prediction, nil
}
