package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// HTTPClient implements Backend against the JSON API of the learning
// platform.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	validator *validator
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		c.client = &http.Client{Timeout: d}
	}
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) (*HTTPClient, error) {
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: defaultTimeout},
		validator: v,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type curriculumRequest struct {
	CurriculumKey string `json:"curriculumKey"`
}

type questionRequest struct {
	QuestionID string `json:"question_id"`
}

type sessionRequest struct {
	ProfileOwner string `json:"profileOwner"`
	SessionSnapshot
}

func (c *HTTPClient) FetchProfile(ctx context.Context, req ProfileRequest) (*ProfileBundle, error) {
	body, err := c.post(ctx, "/profile", req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	if err := check(c.validator.profile, "profile", body); err != nil {
		return nil, err
	}

	var bundle ProfileBundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrInvalidPayload, err)
	}
	return &bundle, nil
}

func (c *HTTPClient) FetchCurriculumTasks(ctx context.Context, curriculumKey string) ([]string, error) {
	body, err := c.post(ctx, "/curriculum", curriculumRequest{CurriculumKey: curriculumKey})
	if err != nil {
		return nil, fmt.Errorf("fetch curriculum %s: %w", curriculumKey, err)
	}
	if err := check(c.validator.tasks, "curriculum", body); err != nil {
		return nil, err
	}

	var tasks []string
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("%w: decode curriculum: %v", ErrInvalidPayload, err)
	}
	return tasks, nil
}

func (c *HTTPClient) FetchQuestion(ctx context.Context, questionID string) (*Question, error) {
	body, err := c.post(ctx, "/question", questionRequest{QuestionID: questionID})
	if err != nil {
		return nil, fmt.Errorf("fetch question %s: %w", questionID, err)
	}
	if err := check(c.validator.question, "question", body); err != nil {
		return nil, err
	}

	var q Question
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("%w: decode question: %v", ErrInvalidPayload, err)
	}
	return &q, nil
}

func (c *HTTPClient) SubmitSession(ctx context.Context, owner string, snap SessionSnapshot) error {
	if _, err := c.post(ctx, "/session", sessionRequest{ProfileOwner: owner, SessionSnapshot: snap}); err != nil {
		return fmt.Errorf("submit session: %w", err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("backend error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
