// Package genai talks to the downstream generation backend over HTTP: sync
// image generation and start-then-poll video generation. It maps backend
// responses onto the stable error taxonomy and leaves retry policy to the
// queue, except for the in-call video poll loop.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/craftlab/cardsmith/internal/domain"
)

// Options configures the backend client.
type Options struct {
	BaseURL      string
	APIKey       string
	ImageTimeout time.Duration
	PollDeadline time.Duration
}

// Client implements domain.GenerationClient against the HTTP backend.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	imageTimeout time.Duration
	pollDeadline time.Duration
	pollInitial  time.Duration
	pollMax      time.Duration
}

// NewClient constructs a backend client.
func NewClient(opts Options) *Client {
	return &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		httpClient:   &http.Client{},
		imageTimeout: opts.ImageTimeout,
		pollDeadline: opts.PollDeadline,
		pollInitial:  2 * time.Second,
		pollMax:      15 * time.Second,
	}
}

type apiErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type imageResponse struct {
	ImageB64 string `json:"image_b64"`
}

type videoStartResponse struct {
	ID string `json:"id"`
}

type videoPollResponse struct {
	Status   string `json:"status"`
	VideoURL string `json:"video_url"`
	Error    struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage produces final PNG bytes synchronously.
func (c *Client) GenerateImage(ctx domain.Context, prompt string) ([]byte, error) {
	ctx, cancel := contextWithTimeout(ctx, c.imageTimeout)
	defer cancel()

	body, err := c.postJSON(ctx, "/v1/images", map[string]any{"prompt": prompt})
	if err != nil {
		return nil, err
	}
	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("op=genai.image decode: %w", domain.ErrBackendUnavailable)
	}
	data, err := base64.StdEncoding.DecodeString(resp.ImageB64)
	if err != nil || len(data) == 0 {
		return nil, fmt.Errorf("op=genai.image payload: %w", domain.ErrBackendUnavailable)
	}
	return data, nil
}

// GenerateVideo starts a backend video job, polls until a terminal state, and
// fetches the produced bytes. A non-nil seed image is letterboxed to the
// backend's frame size before upload.
func (c *Client) GenerateVideo(ctx domain.Context, prompt string, seedImage []byte) ([]byte, error) {
	payload := map[string]any{"prompt": prompt}
	if len(seedImage) > 0 {
		seed, err := LetterboxSeed(seedImage)
		if err != nil {
			return nil, err
		}
		payload["seed_image_b64"] = base64.StdEncoding.EncodeToString(seed)
	}

	body, err := c.postJSON(ctx, "/v1/videos", payload)
	if err != nil {
		return nil, err
	}
	var start videoStartResponse
	if err := json.Unmarshal(body, &start); err != nil || start.ID == "" {
		return nil, fmt.Errorf("op=genai.video start: %w", domain.ErrBackendUnavailable)
	}

	videoURL, err := c.pollVideo(ctx, start.ID)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, videoURL)
}

// pollVideo polls the operation until succeeded or a terminal error, bounded
// by the poll deadline.
func (c *Client) pollVideo(ctx domain.Context, opID string) (string, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.pollInitial
	bo.MaxInterval = c.pollMax
	bo.MaxElapsedTime = c.pollDeadline

	var videoURL string
	operation := func() error {
		body, err := c.getJSON(ctx, "/v1/videos/"+opID)
		if err != nil {
			if !domain.Transient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		var poll videoPollResponse
		if err := json.Unmarshal(body, &poll); err != nil {
			return fmt.Errorf("op=genai.video poll decode: %w", domain.ErrBackendUnavailable)
		}
		switch poll.Status {
		case "succeeded":
			if poll.VideoURL == "" {
				return backoff.Permanent(fmt.Errorf("op=genai.video missing url: %w", domain.ErrBackendUnavailable))
			}
			videoURL = poll.VideoURL
			return nil
		case "failed":
			return backoff.Permanent(mapBackendError(poll.Error.Code, poll.Error.Message))
		default:
			return fmt.Errorf("op=genai.video status=%s: %w", poll.Status, domain.ErrBackendUnavailable)
		}
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if videoURL == "" && !isTaxonomyError(err) {
			return "", fmt.Errorf("op=genai.video poll deadline: %w", domain.ErrBackendUnavailable)
		}
		return "", err
	}
	return videoURL, nil
}

func (c *Client) postJSON(ctx domain.Context, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("op=genai.marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("op=genai.request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) getJSON(ctx domain.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("op=genai.request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("op=genai.do: %w: %v", domain.ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("op=genai.read: %w: %v", domain.ErrBackendUnavailable, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}
	return nil, mapHTTPStatus(resp.StatusCode, body)
}

// fetch downloads produced bytes from a backend-provided URL.
func (c *Client) fetch(ctx domain.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("op=genai.fetch request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("op=genai.fetch empty: %w", domain.ErrBackendUnavailable)
	}
	return data, nil
}

// mapHTTPStatus translates a non-2xx backend response into the taxonomy.
func mapHTTPStatus(status int, body []byte) error {
	var eb apiErrorBody
	_ = json.Unmarshal(body, &eb)
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("op=genai status=429: %w", domain.ErrThrottled)
	case status >= 500:
		return fmt.Errorf("op=genai status=%d: %w", status, domain.ErrBackendUnavailable)
	default:
		return mapBackendError(eb.Error.Code, eb.Error.Message)
	}
}

// mapBackendError translates a backend error code into the taxonomy.
func mapBackendError(code, msg string) error {
	switch {
	case strings.Contains(code, "policy") || strings.Contains(code, "safety"):
		return fmt.Errorf("op=genai code=%s msg=%q: %w", code, msg, domain.ErrPolicyBlocked)
	case strings.Contains(code, "rate") || strings.Contains(code, "throttle"):
		return fmt.Errorf("op=genai code=%s msg=%q: %w", code, msg, domain.ErrThrottled)
	default:
		return fmt.Errorf("op=genai code=%s msg=%q: %w", code, msg, domain.ErrInvalidInput)
	}
}

func isTaxonomyError(err error) bool {
	return domain.ErrorKindOf(err) != domain.ErrorKindInternal
}

func contextWithTimeout(ctx domain.Context, d time.Duration) (domain.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
