package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/mutker/gpuheald/internal/errors"
	"codeberg.org/mutker/gpuheald/internal/logger"
)

// Status is the service's self-reported health.
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusCritical    Status = "critical"
	StatusUnavailable Status = "unavailable"
)

// Health is the result of a management-API health probe.
type Health struct {
	Status       Status
	ModelsLoaded int
}

// Client talks to the inference service's management API (Ollama wire
// format). Every call is bounded by the caller's context; the embedded
// http.Client timeout is the hard backstop.
type Client struct {
	baseURL string
	http    *http.Client
	log     logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log logger.Logger) (*Client, error) {
	errFactory := errors.New()

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errFactory.WithData(ErrInvalidBaseURL, baseURL)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}, nil
}

type psResponse struct {
	Models []struct {
		Name     string `json:"name"`
		Model    string `json:"model"`
		SizeVRAM int64  `json:"size_vram"`
	} `json:"models"`
}

type generateRequest struct {
	Model     string `json:"model"`
	KeepAlive int    `json:"keep_alive"`
}

// Health probes the service. A transport failure maps to unavailable, a
// 5xx to critical, and any other non-200 to degraded; the caller decides
// what to do with that.
func (c *Client) Health(ctx context.Context) (Health, error) {
	errFactory := errors.New()

	resp, err := c.get(ctx, "/api/ps")
	if err != nil {
		return Health{Status: StatusUnavailable}, errFactory.Wrap(ErrHealthCheckFail, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var ps psResponse
		if err := json.NewDecoder(resp.Body).Decode(&ps); err != nil {
			return Health{Status: StatusDegraded}, nil
		}
		return Health{Status: StatusHealthy, ModelsLoaded: len(ps.Models)}, nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return Health{Status: StatusCritical}, nil
	default:
		return Health{Status: StatusDegraded}, nil
	}
}

// UnloadAll asks the service to evict every resident model by issuing a
// zero keep-alive request per model. No loaded models is a successful
// no-op. Returns the number of models unloaded.
func (c *Client) UnloadAll(ctx context.Context) (int, error) {
	errFactory := errors.New()

	resp, err := c.get(ctx, "/api/ps")
	if err != nil {
		return 0, errFactory.Wrap(ErrUnloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errFactory.WithData(ErrBadStatus, resp.StatusCode)
	}

	var ps psResponse
	if err := json.NewDecoder(resp.Body).Decode(&ps); err != nil {
		return 0, errFactory.Wrap(ErrDecodeFailed, err)
	}

	for _, m := range ps.Models {
		if err := c.keepAlive(ctx, m.Model, 0); err != nil {
			return 0, errFactory.Wrap(ErrUnloadFailed, err).WithData(m.Model)
		}
		c.log.Debug().Str("model", m.Model).Msg("Unloaded model")
	}

	return len(ps.Models), nil
}

// Reload pins model warm with an indefinite keep-alive.
func (c *Client) Reload(ctx context.Context, model string) error {
	errFactory := errors.New()

	if model == "" {
		return errFactory.New(ErrNoDefaultModel)
	}

	if err := c.keepAlive(ctx, model, -1); err != nil {
		return errFactory.Wrap(ErrReloadFailed, err).WithData(model)
	}
	c.log.Debug().Str("model", model).Msg("Reloaded model")

	return nil
}

func (c *Client) keepAlive(ctx context.Context, model string, keepAlive int) error {
	body, err := json.Marshal(generateRequest{Model: model, KeepAlive: keepAlive})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	return c.http.Do(req)
}
