package runner

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

// Client delegates unit execution to an HTTP execution service
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a runner client for the given execution service URL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// RunUnit executes one task via POST /units. Transport failures and
// 5xx responses are classified recoverable so the orchestrator retries
// them; 4xx responses mean the request itself is bad and are not.
func (c *Client) RunUnit(ctx context.Context, req *UnitRequest) (*UnitResult, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, faults.Wrap(err, faults.CategoryValidation, "marshal_unit_request",
			fmt.Sprintf("failed to marshal unit request: %v", err), false)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/units", bytes.NewBuffer(data))
	if err != nil {
		return nil, faults.Wrap(err, faults.CategoryValidation, "build_unit_request",
			fmt.Sprintf("failed to build unit request: %v", err), false)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, faults.Wrap(err, faults.CategoryExternalService, "unit_request_failed",
			fmt.Sprintf("execution service unreachable: %v", err), true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		recoverable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, faults.New(faults.CategoryExternalService, "unit_request_rejected",
			fmt.Sprintf("execution service returned status %d: %s", resp.StatusCode, string(body)),
			recoverable).
			WithContext("status_code", resp.StatusCode).
			WithContext("task_id", req.Task.ID)
	}

	var result UnitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, faults.Wrap(err, faults.CategoryExternalService, "decode_unit_result",
			fmt.Sprintf("failed to decode unit result: %v", err), true)
	}

	return &result, nil
}

var _ Runner = (*Client)(nil)
