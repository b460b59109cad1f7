package azureai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"imageforge-backend/internal/metrics"
	"imageforge-backend/internal/retry"
)

// CognitiveServicesScope is the Entra ID scope for Azure OpenAI.
const CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

var (
	ErrMisconfigured = errors.New("image provider is not configured")
	ErrUnavailable   = errors.New("image provider did not accept the job")
	ErrRejected      = errors.New("image provider rejected the job")
	ErrTimedOut      = errors.New("image job did not finish within the poll budget")
)

// Status is the provider-side job state.
type Status string

const (
	StatusNotStarted Status = "notStarted"
	StatusRunning    Status = "running"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// JobHandle identifies a submitted job by its operation-location URL.
type JobHandle struct {
	OperationLocation string
}

type PollResult struct {
	Status   Status
	ImageURL string
	Reason   string
}

type Config struct {
	Endpoint   string
	APIKey     string
	Credential azcore.TokenCredential
	Deployment string
	APIVersion string

	Size    string
	Quality string
	Style   string

	PollInterval time.Duration
	MaxAttempts  int
	// PollTimeout caps a single status request; SubmitTimeout caps the
	// initial job submission.
	PollTimeout   time.Duration
	SubmitTimeout time.Duration

	HTTPClient *http.Client
	// Sleep waits between polls. Tests swap it for a no-op.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zerolog.Logger
}

// Configured reports whether the endpoint and some form of credential are set.
func (c Config) Configured() bool {
	return strings.TrimSpace(c.Endpoint) != "" && (c.APIKey != "" || c.Credential != nil)
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	sleep      func(ctx context.Context, d time.Duration) error
	logger     zerolog.Logger
}

type generationRequest struct {
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Style   string `json:"style,omitempty"`
}

func NewClient(cfg Config) *Client {
	if cfg.Deployment == "" {
		cfg.Deployment = "DALL-E-3"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-01"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 20
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		httpClient: cfg.HTTPClient,
		sleep:      cfg.Sleep,
		logger:     zerolog.Nop(),
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.sleep == nil {
		c.sleep = retry.Sleep
	}
	if cfg.Logger != nil {
		c.logger = cfg.Logger.With().Str("component", "azureai").Logger()
	}
	return c
}

// NewDefaultCredential builds the Entra ID credential chain (environment,
// workload identity, managed identity, Azure CLI).
func NewDefaultCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}
	return cred, nil
}

func (c *Client) Configured() bool {
	return c.cfg.Configured()
}

// MaxDuration is the longest Submit followed by WaitForResult can take,
// however slowly the provider responds.
func (c *Client) MaxDuration() time.Duration {
	perPoll := c.cfg.PollInterval + c.cfg.PollTimeout
	return c.cfg.SubmitTimeout + time.Duration(c.cfg.MaxAttempts)*perPoll
}

// Submit starts a generation job. The provider acknowledges with 202 and an
// operation-location header; anything else is ErrUnavailable.
func (c *Client) Submit(ctx context.Context, prompt string) (JobHandle, error) {
	if !c.Configured() {
		return JobHandle{}, ErrMisconfigured
	}

	jsonData, err := json.Marshal(generationRequest{
		Prompt:  prompt,
		N:       1,
		Size:    c.cfg.Size,
		Quality: c.cfg.Quality,
		Style:   c.cfg.Style,
	})
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/openai/deployments/%s/images/generations?api-version=%s",
		strings.TrimSuffix(c.cfg.Endpoint, "/"), c.cfg.Deployment, c.cfg.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return JobHandle{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return JobHandle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return JobHandle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return JobHandle{}, fmt.Errorf("%w: status %d, body: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	location := resp.Header.Get("operation-location")
	if location == "" {
		return JobHandle{}, fmt.Errorf("%w: missing operation-location header", ErrUnavailable)
	}

	return JobHandle{OperationLocation: location}, nil
}

// Poll fetches the job status once, giving up after PollTimeout. Transport
// and HTTP failures are returned as errors with a running status; callers
// treat them as "not done yet".
func (c *Client) Poll(ctx context.Context, handle JobHandle) (PollResult, error) {
	running := PollResult{Status: StatusRunning}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle.OperationLocation, nil)
	if err != nil {
		return running, fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.authorize(ctx, req); err != nil {
		return running, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return running, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return running, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return running, fmt.Errorf("failed to get job status: status %d, body: %s", resp.StatusCode, string(body))
	}
	if !gjson.ValidBytes(body) {
		return running, fmt.Errorf("failed to decode response, body: %s", string(body))
	}

	status := Status(gjson.GetBytes(body, "status").String())
	switch status {
	case StatusSucceeded:
		imageURL := gjson.GetBytes(body, "result.data.0.url").String()
		if imageURL == "" {
			return PollResult{}, fmt.Errorf("%w: job succeeded without an image url", ErrUnavailable)
		}
		return PollResult{Status: StatusSucceeded, ImageURL: imageURL}, nil
	case StatusFailed:
		reason := gjson.GetBytes(body, "error.message").String()
		if reason == "" {
			reason = gjson.GetBytes(body, "error.code").String()
		}
		return PollResult{Status: StatusFailed, Reason: reason}, nil
	case "":
		return PollResult{Status: StatusRunning}, nil
	default:
		return PollResult{Status: status}, nil
	}
}

// WaitForResult polls the job every PollInterval until it reaches a terminal
// state or MaxAttempts polls have been spent. It returns the image URL,
// ErrRejected for a failed job, or ErrTimedOut.
func (c *Client) WaitForResult(ctx context.Context, handle JobHandle) (string, error) {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if err := c.sleep(ctx, c.cfg.PollInterval); err != nil {
			metrics.ObservePollAttempts(attempt - 1)
			return "", fmt.Errorf("polling interrupted after %d attempts: %w", attempt-1, err)
		}

		result, err := c.Poll(ctx, handle)
		if errors.Is(err, ErrUnavailable) {
			metrics.ObservePollAttempts(attempt)
			return "", err
		}
		if err != nil {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("Job status poll failed, will retry")
			continue
		}

		switch result.Status {
		case StatusSucceeded:
			metrics.ObservePollAttempts(attempt)
			return result.ImageURL, nil
		case StatusFailed:
			metrics.ObservePollAttempts(attempt)
			return "", fmt.Errorf("%w: %s", ErrRejected, result.Reason)
		}

		c.logger.Debug().Int("attempt", attempt).Str("status", string(result.Status)).Msg("Job still running")
	}

	metrics.ObservePollAttempts(c.cfg.MaxAttempts)
	return "", ErrTimedOut
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.cfg.Credential == nil {
		req.Header.Set("api-key", c.cfg.APIKey)
		return nil
	}

	token, err := c.cfg.Credential.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{CognitiveServicesScope},
	})
	if err != nil {
		return fmt.Errorf("failed to acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	return nil
}
