// Package offload delegates processing of large files to a remote service.
// The local pipeline is bypassed entirely on this path; the remote result is
// a pass-through of processed rows.
package offload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"time"

	"tabflow/internal/config"
	"tabflow/internal/domain"
	"tabflow/internal/port"
)

// Client talks to a remote processing service over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	pollInitial time.Duration
	pollMax     time.Duration
	maxWait     time.Duration
}

// NewClient creates an OffloadClient from config. Returns nil when no base
// URL is configured; callers treat a nil client as "offload unavailable".
func NewClient(cfg *config.OffloadConfig) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		http:        &http.Client{Timeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second},
		pollInitial: time.Duration(cfg.PollInitialMillis) * time.Millisecond,
		pollMax:     time.Duration(cfg.PollMaxMillis) * time.Millisecond,
		maxWait:     time.Duration(cfg.MaxWaitSecs) * time.Second,
	}
}

var _ port.OffloadClient = (*Client)(nil)

type startResponse struct {
	JobID string `json:"job_id"`
}

// StartProcessing asks the remote service to process a previously uploaded
// object and returns the job ID to poll.
func (c *Client) StartProcessing(ctx context.Context, req port.OffloadStartRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding start request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building start request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("starting remote processing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("remote processing start returned %d: %w", resp.StatusCode, domain.ErrOffloadFailed)
	}

	var out startResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding start response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("remote processing returned no job id: %w", domain.ErrOffloadFailed)
	}
	return out.JobID, nil
}

// PollResult fetches the current state of a remote job.
func (c *Client) PollResult(ctx context.Context, jobID string) (*port.OffloadPollResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("building poll request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("polling job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("job %s poll returned %d: %w", jobID, resp.StatusCode, domain.ErrOffloadFailed)
	}

	var out port.OffloadPollResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding poll response: %w", err)
	}
	return &out, nil
}

// WaitForResult polls until the job reports done, backing off exponentially
// with jitter between polls. The wait is bounded by the configured wall-clock
// limit regardless of how the remote service behaves; transient poll errors
// are retried until that limit.
func (c *Client) WaitForResult(ctx context.Context, jobID string) (*port.OffloadPollResult, error) {
	deadline := time.Now().Add(c.maxWait)
	interval := c.pollInitial

	for {
		result, err := c.PollResult(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Printf("offload.Client: poll error for job %s: %v", jobID, err)
		} else if result.Done {
			if result.Error != "" {
				return nil, fmt.Errorf("job %s: %s: %w", jobID, result.Error, domain.ErrOffloadFailed)
			}
			return result, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("job %s exceeded %s: %w", jobID, c.maxWait, domain.ErrOffloadTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter(interval)):
		}

		interval *= 2
		if interval > c.pollMax {
			interval = c.pollMax
		}
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// jitter returns a duration in [d/2, d) so concurrent pollers spread out.
// Sub-nanosecond halves (a zero or 1ns interval) carry no room to jitter in.
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + time.Duration(rand.Int63n(int64(half)))
}
