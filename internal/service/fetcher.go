package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"go-pricebook-sync/internal/model"
	"go-pricebook-sync/internal/upstream"
)

// maxPages stops a misbehaving upstream that always reports hasMore.
const maxPages = 10000

// FetchOptions narrows a list fetch.
type FetchOptions struct {
	ModifiedSince *time.Time
	CategoryID    *int64
}

// Fetcher pages through the upstream collections.
type Fetcher struct {
	client      upstream.Client
	pageSize    int
	pageDelay   time.Duration
	pageTimeout time.Duration
	logger      *log.Logger
}

func NewFetcher(client upstream.Client, pageSize int, pageDelay, pageTimeout time.Duration, logger *log.Logger) *Fetcher {
	if pageSize <= 0 {
		pageSize = 500
	}
	return &Fetcher{
		client:      client,
		pageSize:    pageSize,
		pageDelay:   pageDelay,
		pageTimeout: pageTimeout,
		logger:      logger,
	}
}

// FetchAll returns every record of a kind, in upstream order. A failure on
// any page fails the whole fetch: a partial list would make absent items look
// deleted.
func (f *Fetcher) FetchAll(ctx context.Context, kind model.EntityType, opts FetchOptions) ([]upstream.Item, error) {
	var items []upstream.Item
	for page := 1; ; page++ {
		if page > maxPages {
			return nil, fmt.Errorf("fetch %s: more than %d pages", kind, maxPages)
		}
		if page > 1 && f.pageDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.pageDelay):
			}
		}

		res, err := f.fetchPage(ctx, kind, upstream.ListOptions{
			Page:          page,
			PageSize:      f.pageSize,
			CategoryID:    opts.CategoryID,
			ModifiedSince: opts.ModifiedSince,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s page %d: %w", kind, page, err)
		}

		// malformed records are kept, flagged, for the comparator to report
		items = append(items, upstream.DecodeItems(res.Data)...)

		if !res.HasMore || len(res.Data) == 0 {
			break
		}
	}

	f.logger.Printf("fetched %d %s record(s)", len(items), kind)
	return items, nil
}

// FetchByCategory returns every record of a kind filed under one upstream category.
func (f *Fetcher) FetchByCategory(ctx context.Context, kind model.EntityType, categoryID int64) ([]upstream.Item, error) {
	return f.FetchAll(ctx, kind, FetchOptions{CategoryID: &categoryID})
}

// FetchByID returns one record, or upstream.ErrNotFound.
func (f *Fetcher) FetchByID(ctx context.Context, kind model.EntityType, id int64) (upstream.Item, error) {
	if f.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.pageTimeout)
		defer cancel()
	}
	raw, err := f.client.Get(ctx, kind, id)
	if err != nil {
		return upstream.Item{}, fmt.Errorf("fetch %s %d: %w", kind, id, err)
	}
	return upstream.DecodeItem(raw)
}

func (f *Fetcher) fetchPage(ctx context.Context, kind model.EntityType, opts upstream.ListOptions) (*upstream.Page, error) {
	if f.pageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.pageTimeout)
		defer cancel()
	}
	res, err := f.client.List(ctx, kind, opts)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return &upstream.Page{}, nil
	}
	return res, nil
}
