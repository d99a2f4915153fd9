package prelr

import (
	"context"
	"strings"

	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/sirupsen/logrus"
)

// PlantCache holds the plant summary between syncs. A miss is reported
// with ok == false.
type PlantCache interface {
	GetPlants(ctx context.Context) (plants []store.PlantCount, ok bool, err error)
	SetPlants(ctx context.Context, plants []store.PlantCount) error
	InvalidatePlants(ctx context.Context) error
}

// PlantPage is one page of details for a plant.
type PlantPage struct {
	Plant    string               `json:"plant"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"pageSize"`
	Items    []models.PreLRDetail `json:"items"`
}

// Reader serves the read-only plant views.
type Reader struct {
	store store.DetailStore
	cache PlantCache
	log   *logrus.Entry
}

// NewReader creates a Reader; cache may be nil.
func NewReader(st store.DetailStore, cache PlantCache, log *logrus.Entry) *Reader {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Reader{store: st, cache: cache, log: log.WithField("component", "prelr-reader")}
}

// Plants returns the per-plant detail counts. Cache failures fall through
// to the store.
func (r *Reader) Plants(ctx context.Context) ([]store.PlantCount, error) {
	if r.cache != nil {
		plants, ok, err := r.cache.GetPlants(ctx)
		if err != nil {
			r.log.WithError(err).Warn("plant cache read failed")
		} else if ok {
			return plants, nil
		}
	}

	plants, err := r.store.PlantSummary(ctx)
	if err != nil {
		return nil, err
	}
	if plants == nil {
		plants = []store.PlantCount{}
	}

	if r.cache != nil {
		if err := r.cache.SetPlants(ctx, plants); err != nil {
			r.log.WithError(err).Warn("plant cache write failed")
		}
	}
	return plants, nil
}

// PlantDetails pages through the details of one plant. page < 1 is treated
// as 1 and a non-positive pageSize as store.DefaultPageSize.
func (r *Reader) PlantDetails(ctx context.Context, plant string, page, pageSize int) (PlantPage, error) {
	plant = strings.TrimSpace(plant)
	if plant == "" {
		return PlantPage{}, &ValidationError{Fields: []string{"plant"}}
	}
	page, pageSize, _ = store.Offset(page, pageSize)

	items, total, err := r.store.ListByPlant(ctx, plant, page, pageSize)
	if err != nil {
		return PlantPage{}, err
	}
	if items == nil {
		items = []models.PreLRDetail{}
	}
	return PlantPage{
		Plant:    plant,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	}, nil
}
