// Package store defines the persistence contracts of the Pre-LR sync:
// the work queue, the detail collection and the LR collection.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// DefaultPageSize is used by ListByPlant when pageSize is not positive.
const DefaultPageSize = 500

// PlantCount is one row of the plant summary.
type PlantCount struct {
	Plant *string `json:"_id"`
	Count int64   `json:"count"`
}

// QueueStore is the durable work list of remote ids and its completion ledger.
type QueueStore interface {
	// InsertMissing inserts a bare entry for every id not already queued and
	// returns how many were inserted. Existing entries are left untouched.
	InsertMissing(ctx context.Context, ids []string) (int, error)

	// ScanPending streams every entry whose details have not been fetched,
	// in store order, retrieving batchSize entries at a time. Returning an
	// error from fn stops the scan and is returned.
	ScanPending(ctx context.Context, batchSize int, fn func(models.PreLRHeader) error) error

	// MarkFetched records that the detail of internalID was stored as detailID.
	MarkFetched(ctx context.Context, internalID, detailID string, at time.Time) error

	// Pending counts entries not yet fetched.
	Pending(ctx context.Context) (int64, error)
}

// DetailStore holds normalized Pre-LR detail records.
type DetailStore interface {
	// UpsertDetail inserts or replaces the record keyed by d.InternalID.
	// Mapped fields, raw payload and fetchedAt are overwritten; reference
	// arrays are preserved. d.ID is set to the persisted id.
	UpsertDetail(ctx context.Context, d *models.PreLRDetail) error

	// FindByName resolves a detail by its business name.
	FindByName(ctx context.Context, name string) (*models.PreLRDetail, error)

	// AddLRRef appends lrID to the detail's lrs array if it is not there yet.
	AddLRRef(ctx context.Context, detailID, lrID string) error

	// RebuildLRRefs recomputes every lrs array from the LR collection and
	// returns how many details changed.
	RebuildLRRefs(ctx context.Context) (int, error)

	// PlantSummary counts details per plant, ordered by plant.
	PlantSummary(ctx context.Context) ([]PlantCount, error)

	// ListByPlant pages through the details of one plant without raw payloads.
	// page starts at 1.
	ListByPlant(ctx context.Context, plant string, page, pageSize int) ([]models.PreLRDetail, int64, error)
}

// LRStore holds lorry receipts.
type LRStore interface {
	// UpsertLR inserts or updates the LR keyed by (lr.PreLRID, lr.LRNumber)
	// and loads the persisted row back into lr. A nil CreatedBy leaves the
	// stored author unchanged.
	UpsertLR(ctx context.Context, lr *models.LR) error

	// ListLRs returns the LRs of one Pre-LR detail.
	ListLRs(ctx context.Context, preLRID string) ([]models.LR, error)
}

// Store bundles the three collections.
type Store interface {
	QueueStore
	DetailStore
	LRStore
}

// Offset converts a 1-based page into a row offset, normalizing the inputs
// the same way for every implementation.
func Offset(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}

// Error wraps a persistence failure with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, passes ErrNotFound through, and wraps
// anything else in *Error.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &Error{Op: op, Err: err}
}
