// Package prelr implements the two-phase Pre-LR sync, the LR linker and the
// plant read API.
package prelr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/config"
	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/netsuite"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"
)

const (
	defaultConcurrency = 4
	defaultPageSize    = 1000
	scanBatchSize      = 500

	harvestLockKey = "vms:prelr:harvest"
	harvestLockTTL = 30 * time.Minute
)

// Source is the remote record collection.
type Source interface {
	ListIDs(ctx context.Context, limit, offset int) (netsuite.ListPage, error)
	Get(ctx context.Context, id string) (models.NetSuiteRecord, error)
}

// Locker guards scheduled harvests across replicas. ok is false when another
// holder has the lock.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// HarvestResult reports phase one and, when it ran, phase two.
type HarvestResult struct {
	Imported int `json:"imported"`
	Synced   int `json:"synced"`
}

// SyncService orchestrates synchronization between NetSuite and the local store
type SyncService struct {
	src      Source
	store    store.Store
	cfg      config.SyncConfig
	sem      *semaphore.Weighted
	log      *logrus.Entry
	notifier Notifier
	locker   Locker
	cache    PlantCache
	now      func() time.Time

	started  atomic.Bool
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Option customizes a SyncService.
type Option func(*SyncService)

// WithLogger sets the logger entry.
func WithLogger(log *logrus.Entry) Option {
	return func(s *SyncService) { s.log = log.WithField("component", "prelr-sync") }
}

// WithNotifier publishes progress events to n.
func WithNotifier(n Notifier) Option {
	return func(s *SyncService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLocker makes scheduled harvests take a distributed lock.
func WithLocker(l Locker) Option {
	return func(s *SyncService) { s.locker = l }
}

// WithPlantCache invalidates c whenever details are stored.
func WithPlantCache(c PlantCache) Option {
	return func(s *SyncService) { s.cache = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *SyncService) { s.now = now }
}

// NewSyncService creates a new synchronization service
func NewSyncService(src Source, st store.Store, cfg config.SyncConfig, opts ...Option) *SyncService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = defaultPageSize
	}
	s := &SyncService{
		src:      src,
		store:    st,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		log:      logrus.WithField("component", "prelr-sync"),
		notifier: nopNotifier{},
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HarvestIDs pages through the remote listing, queues every id not seen
// before and, when anything new was queued, runs SyncDetails before
// returning. Any remote or store failure aborts the harvest.
func (s *SyncService) HarvestIDs(ctx context.Context) (HarvestResult, error) {
	ids, err := s.collectIDs(ctx)
	if err != nil {
		return HarvestResult{}, err
	}

	imported, err := s.store.InsertMissing(ctx, ids)
	if err != nil {
		return HarvestResult{}, &HarvestError{Err: err}
	}

	s.log.WithFields(logrus.Fields{"seen": len(ids), "imported": imported}).Info("Pre-LR id harvest completed")
	s.notifier.Notify(Event{Type: EventHarvestCompleted, Count: imported, At: s.now()})

	result := HarvestResult{Imported: imported}
	if imported == 0 {
		return result, nil
	}

	synced, err := s.SyncDetails(ctx)
	result.Synced = synced
	return result, err
}

// collectIDs requests pages strictly in sequence and de-duplicates ids.
func (s *SyncService) collectIDs(ctx context.Context) ([]string, error) {
	var ids []string
	seen := make(map[string]struct{})
	offset := 0
	for {
		page, err := s.src.ListIDs(ctx, s.cfg.PageSize, offset)
		if err != nil {
			s.logRemote(err).WithField("offset", offset).Error("Pre-LR listing failed")
			return nil, &HarvestError{Offset: offset, Err: err}
		}
		for _, id := range page.IDs {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		// an empty page ends the walk even if the remote claims more
		if !page.HasMore || len(page.IDs) == 0 {
			return ids, nil
		}
		offset += s.cfg.PageSize
	}
}

// SyncDetails fetches, maps and stores the detail of every pending queue
// entry, at most cfg.Concurrency at a time. Unit failures are logged and
// leave their entry pending; the returned count covers units that were
// marked fetched. A scan or limiter error is returned after in-flight
// units finish.
func (s *SyncService) SyncDetails(ctx context.Context) (int, error) {
	var (
		wg        sync.WaitGroup
		processed atomic.Int64
		failed    atomic.Int64
	)

	scanErr := s.store.ScanPending(ctx, scanBatchSize, func(entry models.PreLRHeader) error {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(internalID string) {
			defer wg.Done()
			defer s.sem.Release(1)

			if err := s.syncOne(ctx, internalID); err != nil {
				failed.Add(1)
				s.logRemote(err).WithField("internal_id", internalID).Error("Pre-LR detail sync failed")
				s.notifier.Notify(Event{Type: EventDetailFailed, InternalID: internalID, Error: err.Error(), At: s.now()})
				return
			}
			processed.Add(1)
			s.notifier.Notify(Event{Type: EventDetailSynced, InternalID: internalID, At: s.now()})
		}(entry.InternalID)
		return nil
	})
	wg.Wait()

	n := int(processed.Load())
	if n > 0 && s.cache != nil {
		if err := s.cache.InvalidatePlants(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).Warn("plant cache invalidation failed")
		}
	}

	fields := logrus.Fields{"processed": n, "failed": failed.Load()}
	s.notifier.Notify(Event{Type: EventSyncCompleted, Count: n, Failed: int(failed.Load()), At: s.now()})
	if scanErr != nil {
		s.log.WithFields(fields).WithError(scanErr).Error("Pre-LR detail sync aborted")
		return n, fmt.Errorf("detail sync aborted: %w", scanErr)
	}
	s.log.WithFields(fields).Info("Pre-LR detail sync completed")
	return n, nil
}

// syncOne is one unit of work: fetch, map, upsert, mark done.
func (s *SyncService) syncOne(ctx context.Context, internalID string) error {
	if s.cfg.UnitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.UnitTimeout)
		defer cancel()
	}

	raw, err := s.src.Get(ctx, internalID)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", internalID, err)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode payload of %s: %w", internalID, err)
	}

	detail := &models.PreLRDetail{
		InternalID:  internalID,
		PreLRFields: MapFields(raw),
		RawPayload:  datatypes.JSON(payload),
		FetchedAt:   s.now(),
	}
	if err := s.store.UpsertDetail(ctx, detail); err != nil {
		return err
	}
	return s.store.MarkFetched(ctx, internalID, detail.ID, s.now())
}

// FetchOne returns the raw remote record, unmodified.
func (s *SyncService) FetchOne(ctx context.Context, id string) (models.NetSuiteRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &ValidationError{Fields: []string{"id"}}
	}
	record, err := s.src.Get(ctx, id)
	if err != nil {
		s.logRemote(err).WithField("internal_id", id).Error("Pre-LR fetch failed")
		return nil, err
	}
	return record, nil
}

// Pending counts queue entries still waiting for their detail.
func (s *SyncService) Pending(ctx context.Context) (int64, error) {
	return s.store.Pending(ctx)
}

// Start begins the background harvest loop. It does nothing unless an
// interval or a startup run is configured.
func (s *SyncService) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	if s.cfg.Interval <= 0 && !s.cfg.OnStartup {
		s.log.Info("Pre-LR scheduler disabled: SYNC_INTERVAL not configured")
		close(s.done)
		return
	}

	go func() {
		defer close(s.done)
		s.log.WithField("interval", s.cfg.Interval.String()).Info("Pre-LR scheduler started")

		if s.cfg.OnStartup {
			s.runScheduled(ctx)
		}
		if s.cfg.Interval <= 0 {
			return
		}

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runScheduled(ctx)
			case <-ctx.Done():
				s.log.Info("Pre-LR scheduler stopped")
				return
			case <-s.stop:
				s.log.Info("Pre-LR scheduler stopped")
				return
			}
		}
	}()
}

// Stop halts the scheduler and waits for a running tick to return.
func (s *SyncService) Stop() {
	if !s.started.Load() {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *SyncService) runScheduled(ctx context.Context) {
	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, harvestLockKey, harvestLockTTL)
		if err != nil {
			s.log.WithError(err).Error("failed to acquire harvest lock")
			return
		}
		if !ok {
			s.log.Debug("scheduled harvest skipped: lock held elsewhere")
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.WithError(err).Warn("failed to release harvest lock")
			}
		}()
	}

	if _, err := s.HarvestIDs(ctx); err != nil {
		config.LogError(s.log, "prelr", "runScheduled", nil, fmt.Errorf("scheduled harvest failed: %w", err))
	}
}

// logRemote attaches the NetSuite response when err carries one.
func (s *SyncService) logRemote(err error) *logrus.Entry {
	entry := s.log.WithError(err)
	var apiErr *netsuite.APIError
	if errors.As(err, &apiErr) {
		entry = entry.WithFields(logrus.Fields{"status": apiErr.StatusCode, "body": apiErr.Body})
	}
	return entry
}
