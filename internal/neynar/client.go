// Package neynar is a small client for the Neynar Farcaster API: following lists,
// storage usage and bulk user lookup.
package neynar

import (
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

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"fcgift/internal/models"
)

const (
	// MaxFollowingLimit is the largest page the following endpoint serves.
	MaxFollowingLimit = 100

	// MaxBulkFIDs is the largest number of fids accepted by one bulk lookup.
	MaxBulkFIDs = 100

	endpointFollowing = "following"
	endpointUsage     = "storage/usage"
	endpointBulk      = "user/bulk"
)

var (
	// ErrUpstreamUnavailable is returned when the API is unreachable, answers with a
	// non-2xx status, or the endpoint is suspended after repeated failures.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNotFound is returned when a looked up account does not exist.
	ErrNotFound = errors.New("account not found")
)

// Options configures a Client.
type Options struct {
	BaseURL          string
	APIKey           string
	Timeout          time.Duration
	RateLimit        float64
	Burst            int
	FailureThreshold int
	SuspendFor       time.Duration
	HTTPClient       *http.Client
}

// Client talks to the Neynar v2 Farcaster API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	health     *HealthTracker
	logger     *zap.SugaredLogger
}

// New creates a new Client instance
func New(opts Options, logger *zap.SugaredLogger) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Limit(opts.RateLimit)
	if opts.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, burst),
		health:     NewHealthTracker(opts.FailureThreshold, opts.SuspendFor),
		logger:     logger,
	}
}

// Health exposes the endpoint health tracker.
func (c *Client) Health() *HealthTracker {
	return c.health
}

type followingResponse struct {
	Users []struct {
		User *models.Account `json:"user"`
	} `json:"users"`
}

type usageResponse struct {
	User *struct {
		FID int64 `json:"fid"`
	} `json:"user"`
	TotalActiveUnits int64                `json:"total_active_units"`
	Casts            *models.StorageClass `json:"casts"`
	Reactions        *models.StorageClass `json:"reactions"`
	Links            *models.StorageClass `json:"links"`
}

type bulkResponse struct {
	Users []models.Account `json:"users"`
}

// GetFollowing returns the accounts fid follows. The limit is clamped to [1, 100].
// Entries without a user object are returned as zero-value accounts so callers
// keep positional correspondence with the upstream list.
func (c *Client) GetFollowing(ctx context.Context, fid int64, limit int) ([]models.Account, error) {
	limit = max(1, min(limit, MaxFollowingLimit))

	q := url.Values{}
	q.Set("fid", strconv.FormatInt(fid, 10))
	q.Set("limit", strconv.Itoa(limit))

	var resp followingResponse
	if err := c.get(ctx, endpointFollowing, q, &resp); err != nil {
		return nil, fmt.Errorf("failed to get following for fid %d: %w", fid, err)
	}

	accounts := make([]models.Account, 0, len(resp.Users))
	for _, entry := range resp.Users {
		if entry.User == nil {
			accounts = append(accounts, models.Account{})
			continue
		}
		accounts = append(accounts, *entry.User)
	}
	return accounts, nil
}

// GetUsage returns the storage usage of fid. A payload missing any resource class
// is returned together with models.ErrMalformedRecord.
func (c *Client) GetUsage(ctx context.Context, fid int64) (*models.UsageRecord, error) {
	q := url.Values{}
	q.Set("fid", strconv.FormatInt(fid, 10))

	var resp usageResponse
	if err := c.get(ctx, endpointUsage, q, &resp); err != nil {
		return nil, fmt.Errorf("failed to get storage usage for fid %d: %w", fid, err)
	}

	record := &models.UsageRecord{
		FID:              fid,
		TotalActiveUnits: resp.TotalActiveUnits,
		Casts:            resp.Casts,
		Reactions:        resp.Reactions,
		Links:            resp.Links,
	}
	if !record.Complete() {
		return record, fmt.Errorf("storage usage for fid %d: %w", fid, models.ErrMalformedRecord)
	}
	return record, nil
}

// GetAccounts looks up accounts by fid, at most 100 per call.
func (c *Client) GetAccounts(ctx context.Context, fids []int64) ([]models.Account, error) {
	if len(fids) == 0 {
		return []models.Account{}, nil
	}
	if len(fids) > MaxBulkFIDs {
		return nil, fmt.Errorf("bulk lookup of %d fids exceeds the maximum of %d", len(fids), MaxBulkFIDs)
	}

	ids := make([]string, len(fids))
	for i, fid := range fids {
		ids[i] = strconv.FormatInt(fid, 10)
	}
	q := url.Values{}
	q.Set("fids", strings.Join(ids, ","))

	var resp bulkResponse
	if err := c.get(ctx, endpointBulk, q, &resp); err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return resp.Users, nil
}

// GetAccount looks up a single account.
func (c *Client) GetAccount(ctx context.Context, fid int64) (*models.Account, error) {
	accounts, err := c.GetAccounts(ctx, []int64{fid})
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].FID == fid {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("fid %d: %w", fid, ErrNotFound)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	if c.health.IsSuspended(endpoint) {
		return fmt.Errorf("%w: endpoint %s suspended", ErrUpstreamUnavailable, endpoint)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return limiterError(ctx, err)
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api_key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The caller's deadline is not the endpoint's fault.
		if ctx.Err() == nil {
			c.health.RecordFailure(endpoint)
		}
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			c.health.RecordFailure(endpoint)
		}
		c.logger.Debugw("Upstream returned non-2xx", "endpoint", endpoint, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("%w: %s returned status %d", ErrUpstreamUnavailable, endpoint, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}

	c.health.RecordSuccess(endpoint)
	return nil
}

// limiterError classifies a failed limiter wait. Waits that could not finish
// before the caller's deadline count as a deadline being exceeded.
func limiterError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, ctxErr)
	}
	if _, ok := ctx.Deadline(); ok {
		return fmt.Errorf("%w: %w: %w", ErrUpstreamUnavailable, context.DeadlineExceeded, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
}
