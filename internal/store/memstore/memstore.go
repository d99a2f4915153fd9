// Package memstore is an in-memory implementation of store.Store. It keeps
// insertion order so scans behave like a primary-key ordered table.
package memstore

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Store is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	nextQueueID uint
	queue       []*models.PreLRHeader
	queueByID   map[string]*models.PreLRHeader

	details      map[string]*models.PreLRDetail // by id
	detailByInt  map[string]string              // internal_id -> id
	detailsOrder []string

	lrs     map[string]*models.LR // by id
	lrByKey map[lrKey]string

	now func() time.Time
}

type lrKey struct {
	preLRID  string
	lrNumber string
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		queueByID:   make(map[string]*models.PreLRHeader),
		details:     make(map[string]*models.PreLRDetail),
		detailByInt: make(map[string]string),
		lrs:         make(map[string]*models.LR),
		lrByKey:     make(map[lrKey]string),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// InsertMissing implements store.QueueStore.
func (s *Store) InsertMissing(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	now := s.now()
	for _, id := range ids {
		if _, ok := s.queueByID[id]; ok {
			continue
		}
		s.nextQueueID++
		entry := &models.PreLRHeader{
			ID:         s.nextQueueID,
			InternalID: id,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		s.queue = append(s.queue, entry)
		s.queueByID[id] = entry
		inserted++
	}
	return inserted, nil
}

// ScanPending implements store.QueueStore. Like a keyset cursor, each batch
// is read after the previous one was handed out, so entries marked while
// scanning are skipped.
func (s *Store) ScanPending(ctx context.Context, batchSize int, fn func(models.PreLRHeader) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var lastID uint
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := s.pendingAfter(lastID, batchSize)
		if len(batch) == 0 {
			return nil
		}
		for _, entry := range batch {
			if err := fn(entry); err != nil {
				return err
			}
		}
		lastID = batch[len(batch)-1].ID
		if len(batch) < batchSize {
			return nil
		}
	}
}

func (s *Store) pendingAfter(lastID uint, limit int) []models.PreLRHeader {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PreLRHeader, 0, limit)
	for _, entry := range s.queue {
		if entry.ID <= lastID || entry.DetailsFetched {
			continue
		}
		out = append(out, *entry)
		if len(out) == limit {
			break
		}
	}
	return out
}

// MarkFetched implements store.QueueStore.
func (s *Store) MarkFetched(ctx context.Context, internalID, detailID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.queueByID[internalID]
	if !ok {
		return store.ErrNotFound
	}
	ref := detailID
	fetchedAt := at
	entry.DetailsFetched = true
	entry.DetailRef = &ref
	entry.FetchedAt = &fetchedAt
	entry.UpdatedAt = s.now()
	return nil
}

// Pending implements store.QueueStore.
func (s *Store) Pending(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, entry := range s.queue {
		if !entry.DetailsFetched {
			n++
		}
	}
	return n, nil
}

// Entry returns a copy of the queue entry for internalID.
func (s *Store) Entry(internalID string) (models.PreLRHeader, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.queueByID[internalID]
	if !ok {
		return models.PreLRHeader{}, false
	}
	return *entry, true
}

// QueueLen returns the number of queue entries.
func (s *Store) QueueLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// UpsertDetail implements store.DetailStore.
func (s *Store) UpsertDetail(ctx context.Context, d *models.PreLRDetail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if id, ok := s.detailByInt[d.InternalID]; ok {
		existing := s.details[id]
		existing.PreLRFields = copyFields(d.PreLRFields)
		existing.RawPayload = cloneJSON(d.RawPayload)
		existing.FetchedAt = d.FetchedAt
		existing.UpdatedAt = now
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
		d.UpdatedAt = now
		d.LRs = slices.Clone(existing.LRs)
		d.Punchlists = slices.Clone(existing.Punchlists)
		d.Checklists = slices.Clone(existing.Checklists)
		return nil
	}

	d.ID = ""
	d.EnsureDefaults()
	d.CreatedAt = now
	d.UpdatedAt = now
	row := copyDetail(d)
	s.details[row.ID] = row
	s.detailByInt[row.InternalID] = row.ID
	s.detailsOrder = append(s.detailsOrder, row.ID)
	return nil
}

// Detail returns a copy of the detail for internalID.
func (s *Store) Detail(internalID string) (models.PreLRDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.detailByInt[internalID]
	if !ok {
		return models.PreLRDetail{}, false
	}
	return *copyDetail(s.details[id]), true
}

// FindByName implements store.DetailStore.
func (s *Store) FindByName(ctx context.Context, name string) (*models.PreLRDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.detailsOrder {
		d := s.details[id]
		if d.Name != nil && *d.Name == name {
			return copyDetail(d), nil
		}
	}
	return nil, store.ErrNotFound
}

// AddLRRef implements store.DetailStore.
func (s *Store) AddLRRef(ctx context.Context, detailID, lrID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.details[detailID]
	if !ok {
		return store.ErrNotFound
	}
	if !slices.Contains(d.LRs, lrID) {
		d.LRs = append(d.LRs, lrID)
	}
	return nil
}

// RebuildLRRefs implements store.DetailStore.
func (s *Store) RebuildLRRefs(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParent := make(map[string][]*models.LR)
	for _, lr := range s.lrs {
		byParent[lr.PreLRID] = append(byParent[lr.PreLRID], lr)
	}

	changed := 0
	for _, id := range s.detailsOrder {
		d := s.details[id]
		children := byParent[id]
		sortLRs(children)
		refs := datatypes.JSONSlice[string]{}
		for _, lr := range children {
			refs = append(refs, lr.ID)
		}
		if !slices.Equal(d.LRs, refs) {
			d.LRs = refs
			changed++
		}
	}
	return changed, nil
}

// PlantSummary implements store.DetailStore. The nil plant sorts first.
func (s *Store) PlantSummary(ctx context.Context) ([]store.PlantCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	var nilCount int64
	for _, d := range s.details {
		if d.Plant == nil {
			nilCount++
			continue
		}
		counts[*d.Plant]++
	}

	plants := make([]string, 0, len(counts))
	for p := range counts {
		plants = append(plants, p)
	}
	sort.Strings(plants)

	out := make([]store.PlantCount, 0, len(plants)+1)
	if nilCount > 0 {
		out = append(out, store.PlantCount{Count: nilCount})
	}
	for _, p := range plants {
		plant := p
		out = append(out, store.PlantCount{Plant: &plant, Count: counts[p]})
	}
	return out, nil
}

// ListByPlant implements store.DetailStore.
func (s *Store) ListByPlant(ctx context.Context, plant string, page, pageSize int) ([]models.PreLRDetail, int64, error) {
	_, pageSize, offset := store.Offset(page, pageSize)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.PreLRDetail
	for _, id := range s.detailsOrder {
		d := s.details[id]
		if d.Plant != nil && *d.Plant == plant {
			matched = append(matched, d)
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []models.PreLRDetail{}, total, nil
	}
	end := min(offset+pageSize, len(matched))

	items := make([]models.PreLRDetail, 0, end-offset)
	for _, d := range matched[offset:end] {
		row := copyDetail(d)
		row.RawPayload = nil
		items = append(items, *row)
	}
	return items, total, nil
}

// UpsertLR implements store.LRStore.
func (s *Store) UpsertLR(ctx context.Context, lr *models.LR) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.details[lr.PreLRID]; !ok {
		return &store.Error{Op: "upsert lr", Err: store.ErrNotFound}
	}

	now := s.now()
	key := lrKey{preLRID: lr.PreLRID, lrNumber: lr.LRNumber}
	if id, ok := s.lrByKey[key]; ok {
		existing := s.lrs[id]
		existing.VehicleNo = lr.VehicleNo
		existing.ReqDate = lr.ReqDate
		existing.DepartDate = lr.DepartDate
		if lr.CreatedBy != nil {
			existing.CreatedBy = cloneString(lr.CreatedBy)
		}
		existing.UpdatedAt = now
		*lr = *existing
		lr.CreatedBy = cloneString(existing.CreatedBy)
		return nil
	}

	row := *lr
	row.ID = uuid.NewString()
	row.CreatedBy = cloneString(lr.CreatedBy)
	row.CreatedAt = now
	row.UpdatedAt = now
	row.PreLR = nil
	s.lrs[row.ID] = &row
	s.lrByKey[key] = row.ID
	*lr = row
	lr.CreatedBy = cloneString(row.CreatedBy)
	return nil
}

// ListLRs implements store.LRStore.
func (s *Store) ListLRs(ctx context.Context, preLRID string) ([]models.LR, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LR
	for _, lr := range s.lrs {
		if lr.PreLRID == preLRID {
			out = append(out, *lr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lrLess(&out[i], &out[j]) })
	return out, nil
}

// LRCount returns the number of stored LRs.
func (s *Store) LRCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lrs)
}

func sortLRs(lrs []*models.LR) {
	sort.Slice(lrs, func(i, j int) bool { return lrLess(lrs[i], lrs[j]) })
}

func lrLess(a, b *models.LR) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func copyDetail(d *models.PreLRDetail) *models.PreLRDetail {
	c := *d
	c.PreLRFields = copyFields(d.PreLRFields)
	c.RawPayload = cloneJSON(d.RawPayload)
	c.LRs = slices.Clone(d.LRs)
	c.Punchlists = slices.Clone(d.Punchlists)
	c.Checklists = slices.Clone(d.Checklists)
	return &c
}

func copyFields(f models.PreLRFields) models.PreLRFields {
	// Round-trip through JSON so no pointer is shared with the caller.
	b, err := json.Marshal(f)
	if err != nil {
		return f
	}
	var out models.PreLRFields
	if err := json.Unmarshal(b, &out); err != nil {
		return f
	}
	return out
}

func cloneJSON(b datatypes.JSON) datatypes.JSON {
	if b == nil {
		return nil
	}
	return slices.Clone(b)
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
