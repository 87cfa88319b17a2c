package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultBaseURL = "http://localhost:4000"

type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Section struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ProjectID string    `json:"project_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

type Task struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SectionID string    `json:"section_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// StatusError is a non-2xx reply from the persistence service.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: GET %s: status %d: %s", e.Path, e.Status, e.Body)
}

// Client reads projects, sections and tasks. Identical concurrent requests
// share one round trip.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *slog.Logger
	group  singleflight.Group
}

// NewClient builds a client for baseURL ("" selects DefaultBaseURL).
func NewClient(logger *slog.Logger, baseURL string, hc *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalog: parse base url: %w", err)
	}
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: u, http: hc, logger: logger}, nil
}

func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var out []Project
	err := c.get(ctx, "/api/project/all", &out)
	return out, err
}

func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	var out []Section
	err := c.get(ctx, "/api/section/all", &out)
	return out, err
}

func (c *Client) TasksBySection(ctx context.Context, sectionID string) ([]Task, error) {
	var out []Task
	err := c.get(ctx, "/api/task/by-section-id/"+url.PathEscape(sectionID), &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	v, err, shared := c.group.Do(path, func() (any, error) {
		return c.fetch(ctx, path)
	})
	if err != nil {
		return err
	}
	if shared && c.logger != nil {
		c.logger.Debug("catalog request shared", "path", path)
	}
	if err := json.Unmarshal(v.([]byte), dst); err != nil {
		return fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+path, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
