package client

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
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/makeasinger/showrunner/internal/config"
)

const (
	defaultSunoTimeout    = 30 * time.Second
	defaultSunoRetryDelay = time.Second
	maxSunoTitleLength    = 80
	maxSunoStyleLength    = 1000
	maxSunoPromptLength   = 5000
	maxStyleCandidates    = 2
)

// Provider task statuses reported by record-info
const (
	SunoStatusPending       = "PENDING"
	SunoStatusTextSuccess   = "TEXT_SUCCESS"
	SunoStatusFirstSuccess  = "FIRST_SUCCESS"
	SunoStatusSuccess       = "SUCCESS"
	SunoStatusCreateFailed  = "CREATE_TASK_FAILED"
	SunoStatusAudioFailed   = "GENERATE_AUDIO_FAILED"
	SunoStatusCallbackError = "CALLBACK_EXCEPTION"
	SunoStatusSensitiveWord = "SENSITIVE_WORD_ERROR"
)

// ErrPollTimeout is returned by PollTask when the task did not finish within maxWait.
var ErrPollTimeout = errors.New("music generation timed out")

// MusicGenerator defines the interface for music generation operations
type MusicGenerator interface {
	Submit(ctx context.Context, req *SubmitMusicRequest) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*MusicTaskStatus, error)
}

// SubmitMusicRequest is one song submission. Styles are tried in order, primary first.
type SubmitMusicRequest struct {
	Lyrics       string
	Title        string
	Styles       []string
	CallbackURL  string
	Instrumental bool
}

// MusicTaskStatus is the provider view of a submitted task
type MusicTaskStatus struct {
	TaskID       string
	Status       string
	Variants     []MusicVariant
	ErrorMessage string
}

// Done reports whether audio for every variant is ready.
func (s *MusicTaskStatus) Done() bool {
	return s.Status == SunoStatusSuccess
}

// Failed reports whether the provider gave up on the task.
func (s *MusicTaskStatus) Failed() bool {
	switch s.Status {
	case SunoStatusCreateFailed, SunoStatusAudioFailed, SunoStatusCallbackError, SunoStatusSensitiveWord:
		return true
	}
	return strings.HasSuffix(s.Status, "_FAILED")
}

// MusicVariant is one generated audio candidate
type MusicVariant struct {
	ID              string
	AudioURL        string
	ImageURL        string
	DurationSeconds float64
	Title           string
}

// SunoClient implements MusicGenerator for sunoapi.org
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	retryDelay time.Duration
}

type sunoGenerateBody struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl,omitempty"`
}

type sunoEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type sunoTaskData struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		SunoData []struct {
			ID       string  `json:"id"`
			AudioURL string  `json:"audioUrl"`
			ImageURL string  `json:"imageUrl"`
			Duration float64 `json:"duration"`
			Title    string  `json:"title"`
		} `json:"sunoData"`
	} `json:"response"`
}

// NewSunoClient creates a new Suno API client
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultSunoTimeout
	}
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: timeout + 5*time.Second,
		},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    timeout,
		retryDelay: defaultSunoRetryDelay,
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Submit starts a generation and returns the provider task id. Each style
// candidate gets one attempt, at most two attempts in total.
func (c *SunoClient) Submit(ctx context.Context, req *SubmitMusicRequest) (string, error) {
	if req == nil || strings.TrimSpace(req.Lyrics) == "" {
		return "", errors.New("lyrics are required")
	}
	if !c.IsConfigured() {
		return "", errors.New("suno API is not configured")
	}

	candidates := StyleCandidates(req.Styles)
	attempt := 0
	return retry.DoWithData(
		func() (string, error) {
			style := candidates[attempt]
			attempt++
			return c.submitOnce(ctx, req, style)
		},
		retry.Context(ctx),
		retry.Attempts(uint(len(candidates))),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("suno submit failed, trying fallback style", "title", req.Title, "attempt", n+1, "error", err)
		}),
	)
}

// StyleCandidates returns the non-empty, de-duplicated styles capped at two.
// An empty input yields a single empty candidate.
func StyleCandidates(styles []string) []string {
	out := make([]string, 0, maxStyleCandidates)
	seen := make(map[string]struct{}, len(styles))
	for _, s := range styles {
		s = truncate(strings.TrimSpace(s), maxSunoStyleLength)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
		if len(out) == maxStyleCandidates {
			break
		}
	}
	if len(out) == 0 {
		out = append(out, "")
	}
	return out
}

func (c *SunoClient) submitOnce(ctx context.Context, req *SubmitMusicRequest, style string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := sunoGenerateBody{
		Prompt:       truncate(req.Lyrics, maxSunoPromptLength),
		Style:        style,
		Title:        truncate(req.Title, maxSunoTitleLength),
		CustomMode:   true,
		Instrumental: req.Instrumental,
		Model:        c.model,
		CallBackURL:  req.CallbackURL,
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := c.post(callCtx, "/api/v1/generate", body, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", errors.New("suno API returned no task id")
	}
	return data.TaskID, nil
}

// TaskStatus retrieves the status and variants of a generation task
func (c *SunoClient) TaskStatus(ctx context.Context, taskID string) (*MusicTaskStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := "/api/v1/generate/record-info?taskId=" + url.QueryEscape(taskID)
	var data sunoTaskData
	if err := c.get(callCtx, endpoint, &data); err != nil {
		return nil, err
	}

	status := &MusicTaskStatus{
		TaskID:       taskID,
		Status:       data.Status,
		ErrorMessage: data.ErrorMessage,
	}
	for _, v := range data.Response.SunoData {
		status.Variants = append(status.Variants, MusicVariant{
			ID:              v.ID,
			AudioURL:        v.AudioURL,
			ImageURL:        v.ImageURL,
			DurationSeconds: v.Duration,
			Title:           v.Title,
		})
	}
	return status, nil
}

// PollTask polls for generation completion until success, failure or maxWait
func (c *SunoClient) PollTask(ctx context.Context, taskID string, interval, maxWait time.Duration) (*MusicTaskStatus, error) {
	deadline := time.Now().Add(maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		result, err := c.TaskStatus(ctx, taskID)
		if err != nil {
			slog.Warn("suno poll failed", "task_id", taskID, "attempt", attempt, "error", err)
			return nil, err
		}

		slog.Debug("suno poll", "task_id", taskID, "attempt", attempt, "status", result.Status)

		if result.Done() || result.Failed() {
			return result, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}

	return nil, fmt.Errorf("%w after %v", ErrPollTimeout, maxWait)
}

// post sends a POST request with JSON body
func (c *SunoClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *SunoClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and unwraps the {code,msg,data} envelope
func (c *SunoClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	slog.Debug("suno request", "method", req.Method, "path", req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	slog.Debug("suno response", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("suno API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var env sunoEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if env.Code != http.StatusOK {
		return fmt.Errorf("suno API error (code %d): %s", env.Code, env.Msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.New("suno API returned no data")
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("failed to unmarshal response data: %w", err)
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
