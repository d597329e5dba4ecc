// Package generator talks to the downstream knowledge-base article generation
// service. One generation request per unique intent; the callee is expected to
// be idempotent per intent, so at-least-once job delivery is safe.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for generation service failures.
var (
	ErrGeneratorUnreachable = errors.New("generation service unreachable")
	ErrGeneratorRejected    = errors.New("generation service rejected request")
	ErrGeneratorTimeout     = errors.New("generation service timeout")
)

// Outcome is the generation service's answer for one intent.
type Outcome struct {
	Status    string     `json:"status"`
	ArticleID *uuid.UUID `json:"article_id,omitempty"`
}

// Generator is the interface for requesting article generation.
type Generator interface {
	Generate(ctx context.Context, intentID, ticketID uuid.UUID) (*Outcome, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Generator against the service's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	IntentID uuid.UUID `json:"intent_id"`
	TicketID uuid.UUID `json:"ticket_id"`
}

// Generate asks the service to produce an article for the intent, citing the
// ticket that triggered the request as source material.
func (c *HTTPClient) Generate(ctx context.Context, intentID, ticketID uuid.UUID) (*Outcome, error) {
	body, err := json.Marshal(generateRequest{IntentID: intentID, TicketID: ticketID})
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	u := fmt.Sprintf("%s/api/v1/generate", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("%w: status %d", ErrGeneratorRejected, resp.StatusCode)
	}

	var outcome Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}
	return &outcome, nil
}

func (c *HTTPClient) Ready(ctx context.Context) error {
	u := fmt.Sprintf("%s/ready", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGeneratorUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: not ready (status %d)", ErrGeneratorUnreachable, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrGeneratorTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrGeneratorTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrGeneratorUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrGeneratorUnreachable, err)
}

// Compile-time check that HTTPClient implements Generator.
var _ Generator = (*HTTPClient)(nil)
