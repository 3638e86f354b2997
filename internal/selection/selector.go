// Package selection sequences following lookup, usage fetch, ranking and
// pagination into one candidate answer per request.
package selection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fcgift/internal/fetcher"
	"fcgift/internal/metrics"
	"fcgift/internal/models"
	"fcgift/internal/pager"
)

var (
	// ErrInvalidViewer is returned for a non-positive viewer fid.
	ErrInvalidViewer = errors.New("invalid viewer")
	// ErrUsageUnavailable is returned when an account's usage could not be resolved.
	ErrUsageUnavailable = errors.New("storage usage unavailable")
	// ErrIncompleteProfile is returned for an account missing a username,
	// display name or avatar. Such accounts are never gift candidates.
	ErrIncompleteProfile = errors.New("incomplete profile")
)

// Selection outcomes reported to metrics.
const (
	outcomeOK    = "ok"
	outcomeEmpty = "empty"
	outcomeError = "error"
)

const defaultFollowingLimit = 100

// GraphSource lists the accounts a viewer follows.
type GraphSource interface {
	GetFollowing(ctx context.Context, fid int64, limit int) ([]models.Account, error)
}

// AccountSource resolves one account's profile.
type AccountSource interface {
	GetAccount(ctx context.Context, fid int64) (*models.Account, error)
}

// UsageFetcher resolves usage for accounts, keeping input order.
type UsageFetcher interface {
	Fetch(ctx context.Context, accounts []models.Account) []*fetcher.Entry
}

// Ranker orders fetched entries by remaining capacity.
type Ranker interface {
	Rank(ctx context.Context, entries []*fetcher.Entry) []models.Candidate
}

// Options configures a Selector.
type Options struct {
	FollowingLimit int
	PageSize       int
	MaxPages       int
	MaxPageSize    int
}

// Request is one candidate selection call. Cursor is the token returned by the
// previous call for the same viewer; empty starts at page 1.
type Request struct {
	Viewer     int64
	Navigation pager.Navigation
	PageSize   int
	Cursor     string
}

// Result is the head candidate of the current page and the page affordances.
type Result struct {
	Candidate   *models.Candidate  `json:"candidate"`
	Page        []models.Candidate `json:"page"`
	CurrentPage int                `json:"current_page"`
	TotalPages  int                `json:"total_pages"`
	HasNext     bool               `json:"has_next"`
	HasBack     bool               `json:"has_back"`
	Cursor      string             `json:"cursor"`
}

// Selector answers candidate selection requests. It holds no per-viewer state;
// the current page travels in the cursor.
type Selector struct {
	graph    GraphSource
	accounts AccountSource
	fetcher  UsageFetcher
	ranker   Ranker
	cursors  *pager.CursorCodec
	opts     Options
	logger   *zap.SugaredLogger
	metrics  metrics.Collector
}

// New creates a new Selector instance
func New(
	graph GraphSource,
	accounts AccountSource,
	usage UsageFetcher,
	ranker Ranker,
	cursors *pager.CursorCodec,
	opts Options,
	logger *zap.SugaredLogger,
	collector metrics.Collector,
) *Selector {
	if opts.FollowingLimit <= 0 {
		opts.FollowingLimit = defaultFollowingLimit
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 1
	}
	if opts.MaxPageSize < opts.PageSize {
		opts.MaxPageSize = opts.PageSize
	}
	if collector == nil {
		collector = metrics.NewNop()
	}

	return &Selector{
		graph:    graph,
		accounts: accounts,
		fetcher:  usage,
		ranker:   ranker,
		cursors:  cursors,
		opts:     opts,
		logger:   logger,
		metrics:  collector,
	}
}

// SelectCandidate ranks the viewer's following by remaining storage and returns
// the head of the requested page. A following lookup failure fails the request;
// per-account usage failures only drop that account.
func (s *Selector) SelectCandidate(ctx context.Context, req Request) (*Result, error) {
	if req.Viewer <= 0 {
		s.metrics.Selection(outcomeError)
		return nil, fmt.Errorf("%w: %d", ErrInvalidViewer, req.Viewer)
	}

	pageSize := s.pageSize(req.PageSize)
	current := s.currentPage(req, pageSize)

	following, err := s.graph.GetFollowing(ctx, req.Viewer, s.opts.FollowingLimit)
	if err != nil {
		s.metrics.Selection(outcomeError)
		return nil, fmt.Errorf("failed to fetch following for %d: %w", req.Viewer, err)
	}

	entries := s.fetcher.Fetch(ctx, following)
	ranked := s.ranker.Rank(ctx, entries)

	state := pager.Paginate(len(ranked), pageSize, s.opts.MaxPages, current, req.Navigation)
	page := pager.Slice(ranked, pageSize, state.CurrentPage)

	result := &Result{
		Page:        page,
		CurrentPage: state.CurrentPage,
		TotalPages:  state.TotalPages,
		HasNext:     state.HasNext,
		HasBack:     state.HasBack,
	}
	if len(page) > 0 {
		head := page[0]
		result.Candidate = &head
	}

	if s.cursors != nil {
		token, err := s.cursors.Encode(pager.Cursor{Viewer: req.Viewer, Page: state.CurrentPage, PageSize: pageSize})
		if err != nil {
			s.metrics.Selection(outcomeError)
			return nil, err
		}
		result.Cursor = token
	}

	if result.Candidate == nil {
		s.metrics.Selection(outcomeEmpty)
	} else {
		s.metrics.Selection(outcomeOK)
	}

	s.logger.Debugw("Selected candidate",
		"viewer", req.Viewer,
		"following", len(following),
		"ranked", len(ranked),
		"page", state.CurrentPage,
		"total_pages", state.TotalPages,
	)
	return result, nil
}

// pageSize clamps the requested size into [1, MaxPageSize]; 0 uses the default.
func (s *Selector) pageSize(requested int) int {
	if requested <= 0 {
		return s.opts.PageSize
	}
	return min(requested, s.opts.MaxPageSize)
}

// currentPage reads the page from the cursor. Missing, invalid or stale cursors
// start over at page 1.
func (s *Selector) currentPage(req Request, pageSize int) int {
	if req.Cursor == "" || s.cursors == nil {
		return 1
	}

	cursor, err := s.cursors.Decode(req.Cursor, req.Viewer)
	if err != nil {
		s.logger.Infow("Ignoring page cursor", "viewer", req.Viewer, "err", err)
		return 1
	}
	if cursor.PageSize != pageSize {
		s.logger.Debugw("Page size changed, restarting at first page",
			"viewer", req.Viewer, "was", cursor.PageSize, "now", pageSize)
		return 1
	}
	return cursor.Page
}

// Profile returns the account shown on the viewer's dashboard.
func (s *Selector) Profile(ctx context.Context, fid int64) (*models.Account, error) {
	if fid <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidViewer, fid)
	}
	account, err := s.accounts.GetAccount(ctx, fid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %d: %w", fid, err)
	}
	return account, nil
}

// GiftTarget resolves a gift recipient with its current remaining storage.
func (s *Selector) GiftTarget(ctx context.Context, fid int64) (*models.Candidate, error) {
	account, err := s.Profile(ctx, fid)
	if err != nil {
		return nil, err
	}

	if !account.Complete() {
		return nil, fmt.Errorf("%w: %d", ErrIncompleteProfile, fid)
	}

	entries := s.fetcher.Fetch(ctx, []models.Account{*account})
	ranked := s.ranker.Rank(ctx, entries)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUsageUnavailable, fid)
	}
	return &ranked[0], nil
}
