package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/BartekS5/crm-migrate/pkg/logger"
	"github.com/BartekS5/crm-migrate/pkg/store"
	"github.com/BartekS5/crm-migrate/pkg/utils"
)

// PagedReader pages through a table in ascending OrderKey order using the
// last key of each page as the cursor for the next.
type PagedReader struct {
	Store      store.Store
	Table      string
	OrderKey   string
	Columns    []string
	Filter     *store.Filter
	PageSize   int
	Retries    int
	RetryDelay time.Duration
}

func NewPagedReader(s store.Store, job Job, pageSize, retries int, retryDelay time.Duration) *PagedReader {
	return &PagedReader{
		Store:      s,
		Table:      job.Source,
		OrderKey:   job.OrderKey,
		Columns:    job.Columns,
		Filter:     job.Filter,
		PageSize:   pageSize,
		Retries:    retries,
		RetryDelay: retryDelay,
	}
}

func (r *PagedReader) NextPage(ctx context.Context, cursor interface{}) (Page, error) {
	return r.read(ctx, cursor, r.Columns)
}

func (r *PagedReader) SkipPage(ctx context.Context, cursor interface{}) (Page, error) {
	return r.read(ctx, cursor, []string{r.OrderKey})
}

func (r *PagedReader) read(ctx context.Context, cursor interface{}, columns []string) (Page, error) {
	q := store.PageQuery{
		Table:    r.Table,
		OrderKey: r.OrderKey,
		After:    cursor,
		Limit:    r.PageSize,
		Columns:  columns,
		Filter:   r.Filter,
	}

	var rows []store.Row
	var err error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		if attempt > 0 {
			logger.WithFields(map[string]interface{}{
				"table":   r.Table,
				"cursor":  cursor,
				"attempt": attempt,
			}).Debugf("retrying page read: %v", err)
			if werr := wait(ctx, r.RetryDelay); werr != nil {
				return Page{}, werr
			}
		}
		rows, err = r.Store.SelectPage(ctx, q)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return Page{}, err
	}

	page := Page{Cursor: cursor, Done: len(rows) < r.PageSize}
	page.Records = make([]SourceRecord, 0, len(rows))
	for _, row := range rows {
		key := utils.NormalizeKey(row[r.OrderKey])
		page.Records = append(page.Records, SourceRecord{Key: key, Row: row})
		if key != nil {
			page.Cursor = key
		}
	}
	if len(rows) > 0 && page.Cursor == cursor && !page.Done {
		return Page{}, fmt.Errorf("page after %v in %s has no %s values to advance the cursor", cursor, r.Table, r.OrderKey)
	}
	return page, nil
}

// wait sleeps for d unless ctx ends first.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
