package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"ytqgo/internal/models"
)

const (
	SchemaModern = "modern"
	SchemaLegacy = "legacy"

	defaultTimeout = 10 * time.Second
)

// Options configures the backend client.
type Options struct {
	BaseURL    string
	Schema     string // SchemaModern (default) or SchemaLegacy
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client talks to the yt-dlp REST backend and normalizes both wire dialects
// into the models package types.
type Client struct {
	baseURL    string
	wire       wire
	httpClient *http.Client

	// overridable so tests do not sleep through real backoffs
	retryDelay func(attempt int) time.Duration
}

// wire decodes one backend response dialect into the normalized model.
type wire interface {
	Job(raw []byte) (models.Job, error)
	JobPage(raw []byte) (models.JobPage, error)
	Catalog(raw []byte) (models.FormatCatalog, error)
	Download(raw []byte) (models.DownloadInfo, error)
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("backend: base url is required")
	}

	var w wire
	switch opts.Schema {
	case "", SchemaModern:
		w = modernWire{}
	case SchemaLegacy:
		w = legacyWire{}
	default:
		return nil, fmt.Errorf("backend: unknown schema %q", opts.Schema)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    baseURL,
		wire:       w,
		httpClient: httpClient,
		retryDelay: RetryDelay,
	}, nil
}

func (c *Client) Health(ctx context.Context) (models.Health, error) {
	var health models.Health
	err := c.withRetry(ctx, "health", func() error {
		raw, err := c.do(ctx, http.MethodGet, "/v1/health", nil)
		if err != nil {
			return err
		}
		return c.decode(raw, &health)
	})
	return health, err
}

// ResolveFormats fetches the catalog of available encodings for the URL.
// The URL must parse; anything else is the backend's call.
func (c *Client) ResolveFormats(ctx context.Context, mediaURL string) (models.FormatCatalog, error) {
	if err := checkURL(mediaURL); err != nil {
		return models.FormatCatalog{}, err
	}
	var catalog models.FormatCatalog
	err := c.withRetry(ctx, "formats", func() error {
		raw, err := c.do(ctx, http.MethodPost, "/v1/formats", map[string]string{"url": mediaURL})
		if err != nil {
			return err
		}
		catalog, err = c.wire.Catalog(raw)
		return err
	})
	return catalog, err
}

// SubmitJob creates a download job. The format id should come from a
// previously resolved catalog; that relationship is the caller's obligation.
func (c *Client) SubmitJob(ctx context.Context, mediaURL, format string) (models.Job, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return models.Job{}, validationError("url is required")
	}
	var job models.Job
	err := c.withRetry(ctx, "submit", func() error {
		raw, err := c.do(ctx, http.MethodPost, "/v1/jobs", map[string]string{"url": mediaURL, "format": format})
		if err != nil {
			return err
		}
		job, err = c.wire.Job(raw)
		return err
	})
	return job, err
}

func (c *Client) ListJobs(ctx context.Context, page, pageSize int) (models.JobPage, error) {
	var jobs models.JobPage
	path := fmt.Sprintf("/v1/jobs?page=%d&pageSize=%d", page, pageSize)
	err := c.withRetry(ctx, "list", func() error {
		raw, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		jobs, err = c.wire.JobPage(raw)
		return err
	})
	return jobs, err
}

func (c *Client) JobDetail(ctx context.Context, id string) (models.Job, error) {
	var job models.Job
	err := c.withRetry(ctx, "detail", func() error {
		raw, err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil)
		if err != nil {
			return err
		}
		job, err = c.wire.Job(raw)
		return err
	})
	return job, err
}

// ResolveDownload asks for a fresh artifact descriptor. The signed URL may be
// short-lived, so results are never cached.
func (c *Client) ResolveDownload(ctx context.Context, id string) (models.DownloadInfo, error) {
	var info models.DownloadInfo
	err := c.withRetry(ctx, "download", func() error {
		raw, err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id)+"/download", nil)
		if err != nil {
			return err
		}
		info, err = c.wire.Download(raw)
		return err
	})
	return info, err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("backend: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) errorFromResponse(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var detail struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"code"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil {
		apiErr.Code = detail.Code
		apiErr.Message = detail.Message
		if apiErr.Message == "" {
			apiErr.Message = detail.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(raw))
	}

	switch {
	case status >= 500:
		apiErr.Kind = KindNetwork
	case status == http.StatusNotFound:
		apiErr.Kind = KindNotFound
	case status == http.StatusBadRequest && strings.Contains(apiErr.Code, "validation"):
		apiErr.Kind = KindValidation
	default:
		apiErr.Kind = KindUpstream
	}

	slog.Debug("Backend error response", "status", status, "code", apiErr.Code, "kind", apiErr.Kind)
	return apiErr
}

func (c *Client) decode(raw []byte, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return &APIError{Kind: KindUpstream, Message: "malformed response", Err: err}
	}
	return nil
}

func checkURL(mediaURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(mediaURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return validationError("invalid url")
	}
	return nil
}

// modernWire is the canonical camelCase, five-state dialect. The normalized
// model matches it field for field.
type modernWire struct{}

func (modernWire) Job(raw []byte) (models.Job, error) {
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return models.Job{}, &APIError{Kind: KindUpstream, Message: "malformed job payload", Err: err}
	}
	return job, nil
}

func (modernWire) JobPage(raw []byte) (models.JobPage, error) {
	var page models.JobPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return models.JobPage{}, &APIError{Kind: KindUpstream, Message: "malformed job list payload", Err: err}
	}
	return page, nil
}

func (modernWire) Catalog(raw []byte) (models.FormatCatalog, error) {
	var catalog models.FormatCatalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return models.FormatCatalog{}, &APIError{Kind: KindUpstream, Message: "malformed formats payload", Err: err}
	}
	return catalog, nil
}

func (modernWire) Download(raw []byte) (models.DownloadInfo, error) {
	var info models.DownloadInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return models.DownloadInfo{}, &APIError{Kind: KindUpstream, Message: "malformed download payload", Err: err}
	}
	return info, nil
}
