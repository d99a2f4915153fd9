// Package pgstore implements store.Store on PostgreSQL through gorm.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const insertBatchSize = 1000

// listColumns is every pre_lr_details column except raw_payload.
var listColumns = func() []string {
	cols := []string{"id", "internal_id"}
	cols = append(cols, models.PreLRFieldColumns...)
	return append(cols, "fetched_at", "lrs", "punchlists", "checklists", "created_at", "updated_at")
}()

// Store is a gorm-backed store.Store.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models returns the tables this store needs migrated.
func Models() []interface{} {
	return []interface{}{
		&models.PreLRHeader{},
		&models.PreLRDetail{},
		&models.LR{},
	}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	return store.Wrap("migrate", s.db.WithContext(ctx).AutoMigrate(Models()...))
}

// InsertMissing implements store.QueueStore with INSERT ... ON CONFLICT DO
// NOTHING, so only absent ids count towards the result.
func (s *Store) InsertMissing(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	rows := make([]models.PreLRHeader, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, models.PreLRHeader{InternalID: id})
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "internal_id"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, insertBatchSize)
	if result.Error != nil {
		return 0, store.Wrap("insert queue entries", result.Error)
	}
	return int(result.RowsAffected), nil
}

// ScanPending implements store.QueueStore. FindInBatches pages by primary
// key, so rows marked as fetched mid-scan do not shift later batches.
func (s *Store) ScanPending(ctx context.Context, batchSize int, fn func(models.PreLRHeader) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	var batch []models.PreLRHeader
	result := s.db.WithContext(ctx).
		Where("details_fetched IS NOT TRUE").
		FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
			for _, entry := range batch {
				if err := fn(entry); err != nil {
					return err
				}
			}
			return nil
		})
	return store.Wrap("scan pending", result.Error)
}

// MarkFetched implements store.QueueStore.
func (s *Store) MarkFetched(ctx context.Context, internalID, detailID string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.PreLRHeader{}).
		Where("internal_id = ?", internalID).
		Updates(map[string]interface{}{
			"details_fetched": true,
			"fetched_at":      at,
			"detail_ref":      detailID,
		})
	if result.Error != nil {
		return store.Wrap("mark fetched", result.Error)
	}
	if result.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Pending implements store.QueueStore.
func (s *Store) Pending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.PreLRHeader{}).
		Where("details_fetched IS NOT TRUE").
		Count(&n).Error
	return n, store.Wrap("count pending", err)
}

// UpsertDetail implements store.DetailStore.
func (s *Store) UpsertDetail(ctx context.Context, d *models.PreLRDetail) error {
	updates := append(append([]string{}, models.PreLRFieldColumns...), "raw_payload", "fetched_at", "updated_at")

	d.ID = ""
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "internal_id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(d).Error
	if err != nil {
		return store.Wrap("upsert detail", err)
	}

	// On conflict the generated id was discarded; read back the row's own.
	var persisted models.PreLRDetail
	err = s.db.WithContext(ctx).
		Select(listColumns).
		Where("internal_id = ?", d.InternalID).
		Take(&persisted).Error
	if err != nil {
		return store.Wrap("reload detail", err)
	}
	d.ID = persisted.ID
	d.CreatedAt = persisted.CreatedAt
	d.UpdatedAt = persisted.UpdatedAt
	d.LRs = persisted.LRs
	d.Punchlists = persisted.Punchlists
	d.Checklists = persisted.Checklists
	return nil
}

// FindByName implements store.DetailStore.
func (s *Store) FindByName(ctx context.Context, name string) (*models.PreLRDetail, error) {
	var d models.PreLRDetail
	err := s.db.WithContext(ctx).Where("name = ?", name).Order("created_at").Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, store.Wrap("find detail by name", err)
	}
	return &d, nil
}

// AddLRRef implements store.DetailStore as a single conditional update,
// the JSONB analogue of "push unless already present".
func (s *Store) AddLRRef(ctx context.Context, detailID, lrID string) error {
	ref, err := json.Marshal([]string{lrID})
	if err != nil {
		return store.Wrap("add lr ref", err)
	}
	err = s.db.WithContext(ctx).
		Model(&models.PreLRDetail{}).
		Where("id = ? AND NOT (COALESCE(lrs, '[]'::jsonb) @> ?::jsonb)", detailID, string(ref)).
		UpdateColumn("lrs", gorm.Expr("COALESCE(lrs, '[]'::jsonb) || ?::jsonb", string(ref))).Error
	return store.Wrap("add lr ref", err)
}

// RebuildLRRefs implements store.DetailStore.
func (s *Store) RebuildLRRefs(ctx context.Context) (int, error) {
	result := s.db.WithContext(ctx).Exec(`
UPDATE pre_lr_details d
SET lrs = r.refs
FROM (
	SELECT d2.id,
	       COALESCE(jsonb_agg(l.id::text ORDER BY l.created_at, l.id) FILTER (WHERE l.id IS NOT NULL), '[]'::jsonb) AS refs
	FROM pre_lr_details d2
	LEFT JOIN lrs l ON l.prelr_id = d2.id
	GROUP BY d2.id
) r
WHERE d.id = r.id AND COALESCE(d.lrs, '[]'::jsonb) IS DISTINCT FROM r.refs`)
	if result.Error != nil {
		return 0, store.Wrap("rebuild lr refs", result.Error)
	}
	return int(result.RowsAffected), nil
}

// PlantSummary implements store.DetailStore.
func (s *Store) PlantSummary(ctx context.Context) ([]store.PlantCount, error) {
	var rows []store.PlantCount
	err := s.db.WithContext(ctx).
		Model(&models.PreLRDetail{}).
		Select("plant, count(*) AS count").
		Group("plant").
		Order("plant NULLS FIRST").
		Scan(&rows).Error
	if err != nil {
		return nil, store.Wrap("plant summary", err)
	}
	return rows, nil
}

// ListByPlant implements store.DetailStore.
func (s *Store) ListByPlant(ctx context.Context, plant string, page, pageSize int) ([]models.PreLRDetail, int64, error) {
	_, pageSize, offset := store.Offset(page, pageSize)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.PreLRDetail{}).Where("plant = ?", plant).Count(&total).Error; err != nil {
		return nil, 0, store.Wrap("count plant details", err)
	}

	items := []models.PreLRDetail{}
	err := s.db.WithContext(ctx).
		Select(listColumns).
		Where("plant = ?", plant).
		Order("created_at, id").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	if err != nil {
		return nil, 0, store.Wrap("list plant details", err)
	}
	return items, total, nil
}

// UpsertLR implements store.LRStore.
func (s *Store) UpsertLR(ctx context.Context, lr *models.LR) error {
	updates := []string{"vehicle_no", "req_date", "depart_date", "updated_at"}
	if lr.CreatedBy != nil {
		updates = append(updates, "created_by")
	}

	lr.ID = ""
	err := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prelr_id"}, {Name: "lr_number"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).
		Create(lr).Error
	if err != nil {
		return store.Wrap("upsert lr", err)
	}

	var persisted models.LR
	err = s.db.WithContext(ctx).
		Where("prelr_id = ? AND lr_number = ?", lr.PreLRID, lr.LRNumber).
		Take(&persisted).Error
	if err != nil {
		return store.Wrap("reload lr", err)
	}
	*lr = persisted
	return nil
}

// ListLRs implements store.LRStore.
func (s *Store) ListLRs(ctx context.Context, preLRID string) ([]models.LR, error) {
	var out []models.LR
	err := s.db.WithContext(ctx).
		Where("prelr_id = ?", preLRID).
		Order("created_at, id").
		Find(&out).Error
	return out, store.Wrap("list lrs", err)
}
