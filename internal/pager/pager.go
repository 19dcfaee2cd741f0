// Package pager fetches a complete, stable historical snapshot one page at a time.
package pager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/AhmedBakrXI/GeoMap/internal/api"
	"github.com/AhmedBakrXI/GeoMap/internal/model"
)

var ErrAlreadyStarted = errors.New("pagination run already started")

// Phase is the lifecycle of one pagination run.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePaging   Phase = "paging"
	PhaseComplete Phase = "complete"
	PhaseFailed   Phase = "failed"
)

// PageEvent is emitted after each page is fetched, in page order.
type PageEvent struct {
	Page          int
	TotalPages    int
	Records       []model.Record
	SnapshotMaxID int64
}

// Result is the full backfill of a completed run.
type Result struct {
	Records       []model.Record
	Pages         int
	Total         int
	SnapshotMaxID int64
}

type Pager struct {
	fetcher  api.PageFetcher
	pageSize int
	logger   *zap.Logger

	mu         sync.RWMutex
	phase      Phase
	page       int
	totalPages int
}

func New(fetcher api.PageFetcher, pageSize int, logger *zap.Logger) *Pager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pager{
		fetcher:  fetcher,
		pageSize: pageSize,
		logger:   logger,
		phase:    PhaseIdle,
	}
}

// Phase returns the current run phase.
func (p *Pager) Phase() Phase {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.phase
}

// Progress returns the last emitted page and the run's total page count.
func (p *Pager) Progress() (page, totalPages int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.page, p.totalPages
}

// Run fetches page 1 unbounded, captures its max_id, then fetches pages
// 2..total_pages sequentially, each bounded by that same max_id. onPage may
// be nil. A failed page aborts the run and no partial result is returned.
func (p *Pager) Run(ctx context.Context, onPage func(PageEvent)) (*Result, error) {
	p.mu.Lock()
	if p.phase != PhaseIdle {
		p.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	p.phase = PhasePaging
	p.mu.Unlock()

	result, err := p.run(ctx, onPage)
	if err != nil {
		p.setPhase(PhaseFailed)
		p.logger.Warn("pagination run failed", zap.Error(err))
		return nil, err
	}

	p.setPhase(PhaseComplete)
	p.logger.Info("pagination run complete",
		zap.Int("pages", result.Pages),
		zap.Int("records", len(result.Records)),
		zap.Int64("max_id", result.SnapshotMaxID),
	)
	return result, nil
}

func (p *Pager) run(ctx context.Context, onPage func(PageEvent)) (*Result, error) {
	first, err := p.fetch(ctx, 1, nil)
	if err != nil {
		return nil, err
	}

	maxID := first.MaxID
	totalPages := first.TotalPages

	result := &Result{
		Records:       make([]model.Record, 0, first.Total),
		Pages:         1,
		Total:         first.Total,
		SnapshotMaxID: maxID,
	}
	result.Records = append(result.Records, first.Data...)
	p.emit(onPage, PageEvent{Page: 1, TotalPages: totalPages, Records: first.Data, SnapshotMaxID: maxID})

	for page := 2; page <= totalPages; page++ {
		next, err := p.fetch(ctx, page, &maxID)
		if err != nil {
			return nil, err
		}

		result.Records = append(result.Records, next.Data...)
		result.Pages = page
		p.emit(onPage, PageEvent{Page: page, TotalPages: totalPages, Records: next.Data, SnapshotMaxID: maxID})
	}

	return result, nil
}

func (p *Pager) fetch(ctx context.Context, page int, bound *int64) (*model.PageResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("page %d: %w", page, err)
	}

	res, err := p.fetcher.FetchPage(ctx, page, p.pageSize, bound)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pager) emit(onPage func(PageEvent), ev PageEvent) {
	p.mu.Lock()
	p.page = ev.Page
	p.totalPages = ev.TotalPages
	p.mu.Unlock()

	p.logger.Debug("history page loaded",
		zap.Int("page", ev.Page),
		zap.Int("total_pages", ev.TotalPages),
		zap.Int("records", len(ev.Records)),
	)

	if onPage != nil {
		onPage(ev)
	}
}

func (p *Pager) setPhase(phase Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = phase
}
