package core

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/huangsam/kpi/contract"
	"github.com/huangsam/kpi/kpistore"
	"github.com/huangsam/kpi/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeUsers is a tracked entity whose rows were created at the given times.
type fakeUsers struct {
	rows   []time.Time
	counts int
	err    error
}

func (u *fakeUsers) KpiNamespace() string { return "users" }

func (u *fakeUsers) CountRows(_ context.Context, asOf *time.Time) (int64, error) {
	u.counts++
	if u.err != nil {
		return 0, u.err
	}
	var n int64
	for _, created := range u.rows {
		if asOf == nil || !created.After(*asOf) {
			n++
		}
	}
	return n, nil
}

// fakeUsersWithMetrics also registers extra metrics.
type fakeUsersWithMetrics struct {
	fakeUsers
	deferredRuns int
	deferredErr  error
}

func (u *fakeUsersWithMetrics) RegisterKpis(_ context.Context, asOf *time.Time) (map[string]contract.Metric, error) {
	return map[string]contract.Metric{
		"max": contract.Number(99),
		"active": contract.Deferred(func(context.Context) (schema.Record, error) {
			u.deferredRuns++
			if u.deferredErr != nil {
				return schema.Record{}, u.deferredErr
			}
			return schema.Record{Value: schema.NumberValue(7)}, nil
		}),
		"plan": contract.Eager(schema.Record{
			Key:       "billing:plan",
			Value:     schema.StringValue("pro"),
			CreatedAt: day(-30),
		}),
	}, nil
}

// tenDailyRows returns rows created at midnight on days 0 through 9.
func tenDailyRows() []time.Time {
	rows := make([]time.Time, 10)
	for i := range rows {
		rows[i] = day(i)
	}
	return rows
}

func fixedClock() time.Time {
	return time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)
}

func keys(records []schema.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Key
	}
	return out
}

func TestSnapshot_DefaultCount(t *testing.T) {
	store := kpistore.NewMemoryStore()
	users := &fakeUsers{rows: tenDailyRows()}
	s := NewScheduler(store, users, WithClock(fixedClock))

	got, err := s.Snapshot(context.Background(), nil, SnapshotOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, usersCount, got[0].Key)
	assert.Equal(t, 10.0, *got[0].Number)
	assert.True(t, got[0].CreatedAt.Equal(fixedClock()))
	assert.NotZero(t, got[0].ID)

	asOf := day(4)
	got, err = s.Snapshot(context.Background(), &asOf, SnapshotOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5.0, *got[0].Number)
	assert.True(t, got[0].CreatedAt.Equal(asOf))
	assert.True(t, got[0].UpdatedAt.Equal(fixedClock()))

	count, err := store.Count(context.Background(), schema.RecordFilter{Key: usersCount})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestSnapshot_RegisteredMetrics(t *testing.T) {
	store := kpistore.NewMemoryStore()
	users := &fakeUsersWithMetrics{fakeUsers: fakeUsers{rows: tenDailyRows()}}
	s := NewScheduler(store, users, WithClock(fixedClock))

	asOf := day(2)
	got, err := s.Snapshot(context.Background(), &asOf, SnapshotOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"users:count", "users:active", "users:max", "billing:plan"}, keys(got))
	assert.Equal(t, 3.0, *got[0].Number)
	assert.Equal(t, 7.0, *got[1].Number)
	assert.Equal(t, 99.0, *got[2].Number)
	assert.Equal(t, "pro", *got[3].String)

	// Explicit keys and dates are kept
	assert.True(t, got[3].CreatedAt.Equal(day(-30)))
	assert.True(t, got[1].CreatedAt.Equal(asOf))
	assert.Equal(t, 1, users.deferredRuns)
}

func TestSnapshot_OnlyAndExcept(t *testing.T) {
	tests := []struct {
		name         string
		opts         SnapshotOptions
		want         []string
		countRuns    int
		deferredRuns int
	}{
		{"only eager", SnapshotOptions{Only: []string{"max"}}, []string{"users:max"}, 0, 0},
		{"only deferred", SnapshotOptions{Only: []string{"active", "count"}}, []string{"users:count", "users:active"}, 1, 1},
		{"except", SnapshotOptions{Except: []string{"count", "active", "plan"}}, []string{"users:max"}, 0, 0},
		{"only and except", SnapshotOptions{Only: []string{"max", "active"}, Except: []string{"active"}}, []string{"users:max"}, 0, 0},
		{"unknown only", SnapshotOptions{Only: []string{"missing"}}, []string{}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &fakeUsersWithMetrics{fakeUsers: fakeUsers{rows: tenDailyRows()}}
			s := NewScheduler(kpistore.NewMemoryStore(), users, WithClock(fixedClock))

			got, err := s.Snapshot(context.Background(), nil, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, keys(got))
			assert.Equal(t, tt.countRuns, users.counts, "count runs")
			assert.Equal(t, tt.deferredRuns, users.deferredRuns, "deferred runs")
		})
	}
}

func TestSnapshot_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("upstream timeout")
	users := &fakeUsersWithMetrics{fakeUsers: fakeUsers{rows: tenDailyRows()}, deferredErr: resolveErr}
	store := kpistore.NewMemoryStore()
	s := NewScheduler(store, users, WithClock(fixedClock))

	got, err := s.Snapshot(context.Background(), nil, SnapshotOptions{})
	assert.ErrorIs(t, err, resolveErr)
	assert.Equal(t, []string{"users:count"}, keys(got))

	count, err := store.Count(context.Background(), schema.RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSnapshot_CountFailure(t *testing.T) {
	countErr := errors.New("users table missing")
	s := NewScheduler(kpistore.NewMemoryStore(), &fakeUsers{err: countErr})

	got, err := s.Snapshot(context.Background(), nil, SnapshotOptions{})
	assert.ErrorIs(t, err, countErr)
	assert.Empty(t, got)
}

func TestBackfill_Daily(t *testing.T) {
	store := kpistore.NewMemoryStore()
	s := NewScheduler(store, &fakeUsers{rows: tenDailyRows()}, WithClock(fixedClock))

	got, err := s.Backfill(context.Background(), day(0), day(10), BackfillOptions{Interval: schema.Day})
	require.NoError(t, err)
	require.Len(t, got, 11)

	for i, r := range got {
		assert.True(t, r.CreatedAt.Equal(day(i)), "record %d", i)
		if i > 0 {
			assert.GreaterOrEqual(t, *r.Number, *got[i-1].Number)
		}
	}
	assert.Equal(t, 1.0, *got[0].Number)
	assert.Equal(t, 10.0, *got[10].Number)
}

func TestBackfill_ExceptDates(t *testing.T) {
	store := kpistore.NewMemoryStore()
	s := NewScheduler(store, &fakeUsers{rows: tenDailyRows()})

	// The time of day does not matter, only the bucket
	got, err := s.Backfill(context.Background(), day(0), day(10), BackfillOptions{Except: []time.Time{day(5).Add(15 * time.Hour)}})
	require.NoError(t, err)
	require.Len(t, got, 10)
	for _, r := range got {
		assert.False(t, r.CreatedAt.Equal(day(5)))
	}

	count, err := s.Query("").PerDay().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
}

func TestBackfill_WeeklyExceptMatchesBucket(t *testing.T) {
	s := NewScheduler(kpistore.NewMemoryStore(), &fakeUsers{rows: tenDailyRows()})

	// Weekly steps from Friday Mar 1; Wednesday Mar 13 shares a bucket with Friday Mar 15
	got, err := s.Backfill(context.Background(), day(0), day(27), BackfillOptions{
		Interval: schema.Week,
		Except:   []time.Time{day(12)},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].CreatedAt.Equal(day(0)))
	assert.True(t, got[1].CreatedAt.Equal(day(7)))
	assert.True(t, got[2].CreatedAt.Equal(day(21)))
}

func TestBackfill_StorageFailureKeepsEarlierRecords(t *testing.T) {
	diskFull := errors.New("disk full")
	store := new(kpistore.MockRecordStore)
	store.On("Insert", mock.Anything, mock.Anything).Return(nil).Times(3)
	store.On("Insert", mock.Anything, mock.Anything).Return(diskFull).Once()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	s := NewScheduler(store, &fakeUsers{rows: tenDailyRows()}, WithLogger(logger))

	got, err := s.Backfill(context.Background(), day(0), day(10), BackfillOptions{})
	require.Error(t, err)
	assert.Len(t, got, 3)
	assert.ErrorIs(t, err, diskFull)

	var backfillErr *BackfillError
	require.ErrorAs(t, err, &backfillErr)
	assert.True(t, backfillErr.Date.Equal(day(3)))
	assert.Contains(t, err.Error(), "2024-03-04")
	assert.Contains(t, logs.String(), "kpi backfill failed")
	store.AssertExpectations(t)
}

func TestBackfill_DefaultIntervalOption(t *testing.T) {
	s := NewScheduler(kpistore.NewMemoryStore(), &fakeUsers{rows: tenDailyRows()}, WithDefaultInterval(schema.Week))

	got, err := s.Backfill(context.Background(), day(0), day(20), BackfillOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[1].CreatedAt.Equal(day(7)))

	// An explicit interval still wins
	got, err = s.Backfill(context.Background(), day(0), day(2), BackfillOptions{Interval: schema.Day})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestBackfill_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScheduler(kpistore.NewMemoryStore(), &fakeUsers{rows: tenDailyRows()})
	got, err := s.Backfill(ctx, day(0), day(3), BackfillOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestBackfill_InvalidInterval(t *testing.T) {
	s := NewScheduler(kpistore.NewMemoryStore(), &fakeUsers{})
	_, err := s.Backfill(context.Background(), day(0), day(3), BackfillOptions{Interval: "quarter"})
	assert.ErrorIs(t, err, schema.ErrUnsupportedInterval)
}

func TestBackfill_StartAfterEnd(t *testing.T) {
	s := NewScheduler(kpistore.NewMemoryStore(), &fakeUsers{})
	got, err := s.Backfill(context.Background(), day(3), day(0), BackfillOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestScheduler_Query(t *testing.T) {
	store := kpistore.NewMemoryStore()
	users := &fakeUsersWithMetrics{fakeUsers: fakeUsers{rows: tenDailyRows()}}
	s := NewScheduler(store, users)

	_, err := s.Backfill(context.Background(), day(0), day(13), BackfillOptions{})
	require.NoError(t, err)

	filter, err := s.Query("max").Filter()
	require.NoError(t, err)
	assert.Equal(t, "users:max", filter.Key)

	// Mar 1 2024 is a Friday, so 14 days touch three ISO weeks
	weekly, err := s.Query("").PerWeek().Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 10, 10}, values(t, weekly))
}
