// Package agentclient implements the fixed HTTP contract every marketplace
// agent exposes: job creation, payment submission, and job status.
package agentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/0rca-network/conductor/pkg/models"
)

const (
	defaultScheme  = "https"
	defaultDomain  = "0rca.live"
	defaultTimeout = 30 * time.Second

	// maxResponseSize bounds each agent response body read.
	maxResponseSize = 4 * 1024 * 1024
)

var (
	// ErrTransport indicates a connection error or non-2xx reply. The caller
	// may retry the same operation; no orchestration state was advanced.
	ErrTransport = errors.New("agent transport failure")

	// ErrContract indicates a 2xx agent reply missing required fields. The
	// agent is treated as misbehaving and is not retried automatically.
	ErrContract = errors.New("agent contract violation")
)

// BaseURLResolver maps an agent to the base URL of its service endpoint.
type BaseURLResolver func(agent *models.AgentMetadata) string

// Config describes how agent endpoints are addressed.
type Config struct {
	Scheme  string // defaults to https
	Domain  string // defaults to 0rca.live
	Timeout time.Duration
}

// Client issues requests against agent service endpoints. It performs no
// internal retries: retry policy belongs to the external driver.
type Client struct {
	httpClient *http.Client
	resolver   BaseURLResolver
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLResolver overrides endpoint resolution; used by tests to point
// agents at a local server.
func WithBaseURLResolver(resolver BaseURLResolver) Option {
	return func(c *Client) {
		c.resolver = resolver
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates an agent client from configuration.
func NewClient(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = defaultScheme
	}

	domain := cfg.Domain
	if domain == "" {
		domain = defaultDomain
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		resolver: func(agent *models.AgentMetadata) string {
			return scheme + "://" + agent.Subdomain + "." + domain
		},
		logger: logger.With("module", "agentclient"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// StartJobResponse is the agent's reply to a job-creation request.
type StartJobResponse struct {
	JobID        string   `json:"job_id"`
	UnsignedTxns []string `json:"unsigned_group_txns"`
}

// StartJob creates a job on the agent. The unsigned transaction payloads are
// agent-defined and passed through unmodified.
func (c *Client) StartJob(ctx context.Context, agent *models.AgentMetadata, senderAddress, jobInput string) (*StartJobResponse, error) {
	body := map[string]any{
		"sender_address": senderAddress,
		"job_input":      jobInput,
	}

	var resp StartJobResponse

	err := c.post(ctx, c.resolver(agent)+"/start_job", body, &resp)
	if err != nil {
		return nil, err
	}

	if resp.JobID == "" || len(resp.UnsignedTxns) == 0 {
		return nil, fmt.Errorf("%w: start_job reply missing job_id or unsigned_group_txns", ErrContract)
	}

	return &resp, nil
}

// PaymentResponse is the agent's reply to a payment submission.
type PaymentResponse struct {
	AccessToken string `json:"access_token"`
}

// SubmitPayment forwards signed transaction ids for a job and returns the
// access token gating further job access.
func (c *Client) SubmitPayment(ctx context.Context, agent *models.AgentMetadata, jobID string, txnIDs []string) (*PaymentResponse, error) {
	body := map[string]any{
		"job_id": jobID,
		"txid":   txnIDs,
	}

	var resp PaymentResponse

	err := c.post(ctx, c.resolver(agent)+"/submit_payment", body, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%w: submit_payment reply missing access_token", ErrContract)
	}

	return &resp, nil
}

// JobStatusResponse is the agent's reply to a status query.
type JobStatusResponse struct {
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// JobStatus queries the job's remote status using the access token.
func (c *Client) JobStatus(ctx context.Context, agent *models.AgentMetadata, jobID, accessToken string) (*JobStatusResponse, error) {
	statusURL := fmt.Sprintf("%s/job/%s?access_token=%s",
		c.resolver(agent), url.PathEscape(jobID), url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}

	var resp JobStatusResponse

	err = c.do(req, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Status == "" {
		return nil, fmt.Errorf("%w: job status reply missing status", ErrContract)
	}

	return &resp, nil
}

func (c *Client) post(ctx context.Context, endpoint string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrTransport, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: agent returned status %d: %s", ErrTransport, resp.StatusCode, bytes.TrimSpace(body))
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return fmt.Errorf("%w: malformed agent response: %w", ErrContract, err)
	}

	return nil
}
