package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/database"
	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// newTestStore connects to VMS_TEST_PG_DSN and empties the tables.
// Tests are skipped when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("VMS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("VMS_TEST_PG_DSN not set")
	}

	db, err := database.Open(dsn, false, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := New(db.DB)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, db.Exec("TRUNCATE lrs, pre_lr_details, pre_lr_headers RESTART IDENTITY").Error)
	return s
}

func str(s string) *string { return &s }

func TestQueueLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.InsertMissing(ctx, []string{"1", "2", "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.InsertMissing(ctx, []string{"2", "3", "4"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	detailID := uuid.NewString()
	require.NoError(t, s.MarkFetched(ctx, "2", detailID, time.Now().UTC()))
	assert.ErrorIs(t, s.MarkFetched(ctx, "nope", detailID, time.Now()), store.ErrNotFound)

	var seen []string
	err = s.ScanPending(ctx, 2, func(e models.PreLRHeader) error {
		seen = append(seen, e.InternalID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3", "4"}, seen)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pending)
}

func TestUpsertDetailAndRefs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &models.PreLRDetail{
		InternalID:  "7",
		PreLRFields: models.PreLRFields{Name: str("PLR-7"), Plant: str("Pune")},
		RawPayload:  datatypes.JSON(`{"id":"7"}`),
		FetchedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.UpsertDetail(ctx, d))
	id := d.ID
	require.NotEmpty(t, id)

	require.NoError(t, s.AddLRRef(ctx, id, "lr-1"))
	require.NoError(t, s.AddLRRef(ctx, id, "lr-1"))

	again := &models.PreLRDetail{
		InternalID:  "7",
		PreLRFields: models.PreLRFields{Name: str("PLR-7"), Plant: str("Chakan")},
		RawPayload:  datatypes.JSON(`{"id":"7","v":2}`),
		FetchedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.UpsertDetail(ctx, again))
	assert.Equal(t, id, again.ID)
	assert.Equal(t, []string{"lr-1"}, []string(again.LRs))

	found, err := s.FindByName(ctx, "PLR-7")
	require.NoError(t, err)
	assert.Equal(t, "Chakan", *found.Plant)

	_, err = s.FindByName(ctx, "PLR-404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLRUpsertAndRebuild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d := &models.PreLRDetail{InternalID: "7", PreLRFields: models.PreLRFields{Name: str("PLR-7")}, FetchedAt: time.Now().UTC()}
	require.NoError(t, s.UpsertDetail(ctx, d))

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	first := &models.LR{PreLRID: d.ID, LRNumber: "LR-1", VehicleNo: "MH12AB1234", ReqDate: day, DepartDate: day, CreatedBy: str("dispatcher")}
	require.NoError(t, s.UpsertLR(ctx, first))

	second := &models.LR{PreLRID: d.ID, LRNumber: "LR-1", VehicleNo: "MH12ZZ9999", ReqDate: day, DepartDate: day}
	require.NoError(t, s.UpsertLR(ctx, second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "MH12ZZ9999", second.VehicleNo)
	require.NotNil(t, second.CreatedBy, "omitted author keeps the stored one")
	assert.Equal(t, "dispatcher", *second.CreatedBy)

	third := &models.LR{PreLRID: d.ID, LRNumber: "LR-1", VehicleNo: "MH12ZZ9999", ReqDate: day, DepartDate: day, CreatedBy: str("ops")}
	require.NoError(t, s.UpsertLR(ctx, third))
	require.NotNil(t, third.CreatedBy)
	assert.Equal(t, "ops", *third.CreatedBy)

	lrs, err := s.ListLRs(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, lrs, 1)

	changed, err := s.RebuildLRRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	changed, err = s.RebuildLRRefs(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestPlantQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, plant := range []*string{str("Pune"), str("Chakan"), str("Pune"), nil} {
		d := &models.PreLRDetail{
			InternalID:  uuid.NewString(),
			PreLRFields: models.PreLRFields{Name: str("PLR-" + string(rune('a'+i))), Plant: plant},
			RawPayload:  datatypes.JSON(`{"big":true}`),
			FetchedAt:   time.Now().UTC(),
		}
		require.NoError(t, s.UpsertDetail(ctx, d))
	}

	summary, err := s.PlantSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Nil(t, summary[0].Plant)
	assert.Equal(t, "Chakan", *summary[1].Plant)
	assert.Equal(t, "Pune", *summary[2].Plant)
	assert.Equal(t, int64(2), summary[2].Count)

	items, total, err := s.ListByPlant(ctx, "Pune", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].RawPayload)

	items, _, err = s.ListByPlant(ctx, "Pune", 3, 1)
	require.NoError(t, err)
	assert.Empty(t, items)
}
