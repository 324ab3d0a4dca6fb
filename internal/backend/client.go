package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelrealty/backoffice/internal/entities"
	apperrors "github.com/kestrelrealty/backoffice/pkg/errors"
)

// DefaultTimeout bounds every backend call so a hung entity endpoint cannot
// stall a whole aggregation cycle.
const DefaultTimeout = 10 * time.Second

// Config describes how to reach the brokerage REST backend.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Token   string // optional bearer token for the upstream API
}

// Stats carries per-status counts for one entity type.
type Stats struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

// Attention returns the count of items still waiting for staff, i.e. the
// "new" bucket every entity type reports.
func (s Stats) Attention() int {
	return s.Counts[entities.StatusNew]
}

// Client issues entity-scoped calls against the brokerage backend.
// One Client serves all entity types; the descriptor supplies the path.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	registry *entities.Registry
}

// NewClient constructs a backend client.
func NewClient(cfg Config, registry *entities.Registry) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if registry == nil {
		return nil, errors.New("backend: entity registry is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:  base,
		token:    strings.TrimSpace(cfg.Token),
		http:     &http.Client{Timeout: timeout},
		registry: registry,
	}, nil
}

// ListRecent returns up to limit most-recent items of the given type matching
// the status filter. An empty result is a nil-error empty slice.
func (c *Client) ListRecent(ctx context.Context, t entities.Type, status string, limit int) ([]entities.Record, error) {
	d, ok := c.registry.Lookup(t)
	if !ok {
		return nil, apperrors.ErrUnknownEntity
	}

	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, d.APIPath, query.Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("backend: list %s: %w", t, err)
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("backend: decode %s list: %w", t, err)
	}
	return records, nil
}

// Stats fetches aggregate status counts for one entity type.
func (c *Client) Stats(ctx context.Context, t entities.Type) (*Stats, error) {
	d, ok := c.registry.Lookup(t)
	if !ok {
		return nil, apperrors.ErrUnknownEntity
	}

	endpoint := fmt.Sprintf("%s/%s/stats", c.baseURL, d.APIPath)
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("backend: stats %s: %w", t, err)
	}

	var raw map[string]int
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("backend: decode %s stats: %w", t, err)
	}

	stats := &Stats{Counts: make(map[string]int, len(raw))}
	for status, count := range raw {
		if status == "total" {
			stats.Total = count
			continue
		}
		stats.Counts[status] = count
	}
	return stats, nil
}

// SetStatus transitions one item to a new status within its type's own
// vocabulary. Transitioning to the current status is a backend no-op and
// succeeds. Unknown ids map to ErrNotFound, rejected statuses to
// ErrInvalidStatus.
func (c *Client) SetStatus(ctx context.Context, t entities.Type, id, status string) error {
	d, ok := c.registry.Lookup(t)
	if !ok {
		return apperrors.ErrUnknownEntity
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.NewBadRequest("item id is required")
	}
	if !d.ValidStatus(status) {
		return apperrors.ErrInvalidStatus
	}

	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return fmt.Errorf("backend: marshal status payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s/status", c.baseURL, d.APIPath, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.ErrUpstreamUnavailable.WithInternal(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.ErrNotFound
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnprocessableEntity:
		return apperrors.ErrInvalidStatus
	default:
		return apperrors.ErrUpstreamUnavailable.WithInternal(fmt.Errorf("status %d", resp.StatusCode))
	}
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.ErrUpstreamUnavailable.WithInternal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		if resp.StatusCode == http.StatusNotFound {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.ErrUpstreamUnavailable.WithInternal(fmt.Errorf("status %d", resp.StatusCode))
	}

	return io.ReadAll(resp.Body)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// decodeRecords accepts both a bare JSON array and the {"data": [...]}
// envelope some backend deployments emit.
func decodeRecords(body []byte) ([]entities.Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []entities.Record{}, nil
	}

	if trimmed[0] == '[' {
		var records []entities.Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		if records == nil {
			records = []entities.Record{}
		}
		return records, nil
	}

	var envelope struct {
		Data []entities.Record `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		envelope.Data = []entities.Record{}
	}
	return envelope.Data, nil
}
