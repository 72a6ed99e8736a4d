package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/overseerd/overseer/pkg/faults"
)

// RunnerReviewer asks the execution service to judge the project's
// current state via POST /reviews
type RunnerReviewer struct {
	baseURL    string
	httpClient *http.Client
}

// NewRunnerReviewer creates a reviewer backed by the execution service
func NewRunnerReviewer(baseURL string) *RunnerReviewer {
	return &RunnerReviewer{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (r *RunnerReviewer) Review(ctx context.Context, projectID string, sessionNumber int, deep bool) (int, error) {
	req := struct {
		ProjectID     string `json:"project_id"`
		SessionNumber int    `json:"session_number"`
		Deep          bool   `json:"deep"`
	}{projectID, sessionNumber, deep}

	data, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal review request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.baseURL+"/reviews", bytes.NewBuffer(data))
	if err != nil {
		return 0, fmt.Errorf("failed to build review request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return 0, faults.Wrap(err, faults.CategoryExternalService, "review_request_failed",
			fmt.Sprintf("review service unreachable: %v", err), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, faults.New(faults.CategoryExternalService, "review_request_rejected",
			fmt.Sprintf("review service returned status %d: %s", resp.StatusCode, string(body)),
			resp.StatusCode >= 500)
	}

	var result struct {
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode review result: %w", err)
	}
	if result.Rating < 1 || result.Rating > 10 {
		return 0, faults.New(faults.CategoryValidation, "invalid_rating",
			fmt.Sprintf("review rating %d outside 1-10", result.Rating), false)
	}
	return result.Rating, nil
}

var _ Reviewer = (*RunnerReviewer)(nil)
