package prelr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/chandanyadavsde/vms-v2/internal/config"
	"github.com/chandanyadavsde/vms-v2/internal/models"
	"github.com/chandanyadavsde/vms-v2/internal/netsuite"
	"github.com/chandanyadavsde/vms-v2/internal/store"
	"github.com/chandanyadavsde/vms-v2/internal/store/memstore"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource serves a fixed id list and records calls.
type fakeSource struct {
	mu          sync.Mutex
	ids         []string
	records     map[string]models.NetSuiteRecord
	getErr      map[string]error
	listErrAt   int // offset that fails, -1 for none
	delay       time.Duration
	block       bool
	listCalls   int
	getCalls    map[string]int
	inFlight    int
	maxInFlight int
}

func newFakeSource(ids ...string) *fakeSource {
	f := &fakeSource{
		ids:       ids,
		records:   make(map[string]models.NetSuiteRecord),
		getErr:    make(map[string]error),
		getCalls:  make(map[string]int),
		listErrAt: -1,
	}
	for _, id := range ids {
		f.records[id] = rawRecord(map[string]any{
			"id":              id,
			fieldName:         "PRELR-" + id,
			fieldFromLocation: map[string]any{"id": "7", "refName": "Plant " + id[:1]},
			fieldStatus:       "Open",
		})
	}
	return f
}

func (f *fakeSource) ListIDs(ctx context.Context, limit, offset int) (netsuite.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErrAt >= 0 && offset == f.listErrAt {
		return netsuite.ListPage{}, &netsuite.APIError{StatusCode: 503, Method: "GET", Body: "unavailable"}
	}
	if offset >= len(f.ids) {
		return netsuite.ListPage{}, nil
	}
	end := min(offset+limit, len(f.ids))
	return netsuite.ListPage{IDs: append([]string(nil), f.ids[offset:end]...), HasMore: end < len(f.ids)}, nil
}

func (f *fakeSource) Get(ctx context.Context, id string) (models.NetSuiteRecord, error) {
	f.mu.Lock()
	f.getCalls[id]++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay, block := f.delay, f.block
	err := f.getErr[id]
	rec := f.records[id]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (f *fakeSource) calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls[id]
}

func rawRecord(fields map[string]any) models.NetSuiteRecord {
	rec := make(models.NetSuiteRecord, len(fields))
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		rec[k] = b
	}
	return rec
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestService(src Source, st store.Store, cfg config.SyncConfig, opts ...Option) *SyncService {
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	return NewSyncService(src, st, cfg, opts...)
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%d", 1000+i)
	}
	return out
}

func TestHarvestIDsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(ids(5)...)
	st := memstore.New()
	svc := newTestService(src, st, config.SyncConfig{PageSize: 2})

	first, err := svc.HarvestIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, HarvestResult{Imported: 5, Synced: 5}, first)
	assert.Equal(t, 3, src.listCalls)

	second, err := svc.HarvestIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, HarvestResult{}, second)
	assert.Equal(t, 5, st.QueueLen())
	for _, id := range ids(5) {
		assert.Equal(t, 1, src.calls(id), "record %s fetched more than once", id)
	}
}

func TestHarvestIDsNeverDuplicatesEntries(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("1", "2", "2", "3", "1")
	st := memstore.New()
	svc := newTestService(src, st, config.SyncConfig{PageSize: 2})

	res, err := svc.HarvestIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Equal(t, 3, st.QueueLen())

	// an entry already done stays done
	entry, ok := st.Entry("2")
	require.True(t, ok)
	assert.True(t, entry.DetailsFetched)

	src.ids = append(src.ids, "4")
	res, err = svc.HarvestIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 4, st.QueueLen())
	entry, _ = st.Entry("2")
	assert.True(t, entry.DetailsFetched)
}

func TestHarvestIDsAbortsOnListingFailure(t *testing.T) {
	src := newFakeSource("1", "2", "3")
	src.listErrAt = 2
	st := memstore.New()
	svc := newTestService(src, st, config.SyncConfig{PageSize: 2})

	res, err := svc.HarvestIDs(context.Background())
	require.Error(t, err)
	assert.Equal(t, HarvestResult{}, res)

	var harvestErr *HarvestError
	require.ErrorAs(t, err, &harvestErr)
	assert.Equal(t, 2, harvestErr.Offset)

	var apiErr *netsuite.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.StatusCode)

	assert.Zero(t, st.QueueLen(), "nothing is written before every page is read")
}

func TestHarvestIDsStopsOnEmptyPage(t *testing.T) {
	src := &stuckSource{}
	svc := newTestService(src, memstore.New(), config.SyncConfig{PageSize: 10})

	res, err := svc.HarvestIDs(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, 1, src.calls)
}

type stuckSource struct{ calls int }

func (s *stuckSource) ListIDs(ctx context.Context, limit, offset int) (netsuite.ListPage, error) {
	s.calls++
	return netsuite.ListPage{HasMore: true}, nil
}

func (s *stuckSource) Get(ctx context.Context, id string) (models.NetSuiteRecord, error) {
	return nil, errors.New("not used")
}

func TestSyncDetailsSkipsCompletedEntries(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("1", "2")
	st := memstore.New()
	_, err := st.InsertMissing(ctx, src.ids)
	require.NoError(t, err)
	svc := newTestService(src, st, config.SyncConfig{})

	n, err := svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, src.calls("1"))
	assert.Equal(t, 1, src.calls("2"))

	entry, ok := st.Entry("1")
	require.True(t, ok)
	detail, ok := st.Detail("1")
	require.True(t, ok)
	require.NotNil(t, entry.DetailRef)
	assert.Equal(t, detail.ID, *entry.DetailRef)
	assert.NotNil(t, entry.FetchedAt)
}

func TestSyncDetailsStoresMappedFields(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	src := newFakeSource("42")
	st := memstore.New()
	_, err := st.InsertMissing(ctx, []string{"42"})
	require.NoError(t, err)
	svc := newTestService(src, st, config.SyncConfig{}, WithClock(func() time.Time { return fixed }))

	_, err = svc.SyncDetails(ctx)
	require.NoError(t, err)

	detail, ok := st.Detail("42")
	require.True(t, ok)
	require.NotNil(t, detail.Name)
	assert.Equal(t, "PRELR-42", *detail.Name)
	require.NotNil(t, detail.Plant)
	assert.Equal(t, "Plant 4", *detail.Plant)
	assert.Equal(t, detail.Plant, detail.FromLocation)
	assert.Equal(t, fixed, detail.FetchedAt)
	assert.JSONEq(t, string(mustJSON(t, src.records["42"])), string(detail.RawPayload))
	assert.Empty(t, detail.LRs)
}

func TestSyncDetailsBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource(ids(20)...)
	src.delay = 15 * time.Millisecond
	st := memstore.New()
	_, err := st.InsertMissing(ctx, src.ids)
	require.NoError(t, err)
	svc := newTestService(src, st, config.SyncConfig{Concurrency: 4})

	n, err := svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.LessOrEqual(t, src.maxInFlight, 4)
	assert.Positive(t, src.maxInFlight)
}

func TestSyncDetailsIsolatesUnitFailures(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("A", "B", "C")
	src.getErr["B"] = &netsuite.APIError{StatusCode: 500, Method: "GET", Body: "boom"}
	st := memstore.New()
	_, err := st.InsertMissing(ctx, src.ids)
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []Event
	)
	notifier := NotifierFunc(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	svc := newTestService(src, st, config.SyncConfig{}, WithNotifier(notifier))

	n, err := svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, ok := st.Entry("B")
	require.True(t, ok)
	assert.False(t, b.DetailsFetched)
	assert.Nil(t, b.DetailRef)
	_, ok = st.Detail("B")
	assert.False(t, ok)

	for _, id := range []string{"A", "C"} {
		d, ok := st.Detail(id)
		require.True(t, ok, id)
		assert.False(t, d.FetchedAt.IsZero())
		e, _ := st.Entry(id)
		assert.True(t, e.DetailsFetched)
	}

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending)

	mu.Lock()
	defer mu.Unlock()
	last := events[len(events)-1]
	assert.Equal(t, EventSyncCompleted, last.Type)
	assert.Equal(t, 2, last.Count)
	assert.Equal(t, 1, last.Failed)
	var failed []string
	for _, e := range events {
		if e.Type == EventDetailFailed {
			failed = append(failed, e.InternalID)
		}
	}
	assert.Equal(t, []string{"B"}, failed)
}

func TestSyncDetailsRetriesFailedEntryNextRun(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("A", "B")
	src.getErr["B"] = errors.New("connection reset")
	st := memstore.New()
	_, err := st.InsertMissing(ctx, src.ids)
	require.NoError(t, err)
	svc := newTestService(src, st, config.SyncConfig{})

	n, err := svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	src.mu.Lock()
	delete(src.getErr, "B")
	src.mu.Unlock()

	n, err = svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, src.calls("A"))
	assert.Equal(t, 2, src.calls("B"))
}

func TestSyncDetailsTimesOutStuckUnits(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("1", "2")
	src.block = true
	st := memstore.New()
	_, err := st.InsertMissing(ctx, src.ids)
	require.NoError(t, err)
	svc := newTestService(src, st, config.SyncConfig{UnitTimeout: 20 * time.Millisecond})

	n, err := svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	pending, err := st.Pending(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)
}

func TestSyncDetailsReturnsScanError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := newFakeSource("1")
	st := memstore.New()
	_, err := st.InsertMissing(context.Background(), src.ids)
	require.NoError(t, err)
	svc := newTestService(src, st, config.SyncConfig{})

	n, err := svc.SyncDetails(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
	assert.Zero(t, src.calls("1"))
}

func TestSyncDetailsInvalidatesPlantCache(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource("1")
	st := memstore.New()
	_, err := st.InsertMissing(ctx, src.ids)
	require.NoError(t, err)
	cache := newFakeCache()
	cache.plants = []store.PlantCount{{Count: 9}}
	cache.ok = true
	svc := newTestService(src, st, config.SyncConfig{}, WithPlantCache(cache))

	_, err = svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)

	// nothing stored, nothing invalidated
	_, err = svc.SyncDetails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)
}

func TestFetchOne(t *testing.T) {
	src := newFakeSource("9")
	svc := newTestService(src, memstore.New(), config.SyncConfig{})

	rec, err := svc.FetchOne(context.Background(), " 9 ")
	require.NoError(t, err)
	assert.Equal(t, "9", *rec.Text("id"))

	_, err = svc.FetchOne(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrValidation)
}

type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil, false, nil
	}
	l.acquired++
	return func(context.Context) error {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
		return nil
	}, true, nil
}

func TestSchedulerRunsStartupHarvestUnderLock(t *testing.T) {
	src := newFakeSource("1", "2")
	st := memstore.New()
	locker := &fakeLocker{}
	svc := newTestService(src, st, config.SyncConfig{OnStartup: true}, WithLocker(locker))

	svc.Start(context.Background())
	svc.Stop()

	assert.Equal(t, 2, st.QueueLen())
	assert.Equal(t, 1, locker.acquired)
	assert.Equal(t, 1, locker.released)
}

func TestSchedulerSkipsWhenLockHeld(t *testing.T) {
	src := newFakeSource("1")
	st := memstore.New()
	svc := newTestService(src, st, config.SyncConfig{OnStartup: true}, WithLocker(&fakeLocker{held: true}))

	svc.Start(context.Background())
	svc.Stop()

	assert.Zero(t, src.listCalls)
	assert.Zero(t, st.QueueLen())
}

func TestSchedulerTicks(t *testing.T) {
	src := newFakeSource("1")
	svc := newTestService(src, memstore.New(), config.SyncConfig{Interval: 5 * time.Millisecond})

	svc.Start(context.Background())
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.listCalls >= 2
	}, time.Second, time.Millisecond)
	svc.Stop()
	svc.Stop()
}

func TestSchedulerDisabled(t *testing.T) {
	src := newFakeSource("1")
	svc := newTestService(src, memstore.New(), config.SyncConfig{})

	svc.Start(context.Background())
	svc.Stop()
	assert.Zero(t, src.listCalls)
}

func TestStopWithoutStart(t *testing.T) {
	svc := newTestService(newFakeSource(), memstore.New(), config.SyncConfig{})
	svc.Stop()
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
