package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/expectd/internal/id"
	"github.com/getmockd/expectd/pkg/expectation"
)

// --- Helper ---

var epoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newExpectation(id string, priority int, times *expectation.Times) *expectation.Expectation {
	return expectation.When(expectation.Request().WithPath("/" + id)).
		WithID(id).
		WithPriority(priority).
		WithTimes(times).
		Then(expectation.Response(200))
}

func all(*expectation.Expectation) bool { return true }

func ids(exps []*expectation.Expectation) []string {
	out := make([]string, 0, len(exps))
	for _, e := range exps {
		out = append(out, e.ID)
	}
	return out
}

// --- MemoryStore Tests ---

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() returned nil")
	}
	if store.Count() != 0 {
		t.Errorf("new store Count() = %d, want 0", store.Count())
	}
}

func TestMemory_UpsertAssignsID(t *testing.T) {
	store := NewMemoryStore(WithSource(id.NewFixed(epoch, "generated-id")))

	res := store.Upsert(expectation.When(expectation.Request()).Then(expectation.Response(204)))
	require.True(t, res.Created)
	assert.Equal(t, "generated-id", res.Expectation.ID)

	remaining, unlimited := res.Expectation.Remaining()
	assert.True(t, unlimited)
	assert.Zero(t, remaining)
}

func TestMemory_SelectionOrder(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("low-first", 1, nil))
	store.Upsert(newExpectation("high", 5, nil))
	store.Upsert(newExpectation("low-second", 1, nil))
	store.Upsert(newExpectation("negative", -1, nil))

	assert.Equal(t, []string{"high", "low-first", "low-second", "negative"}, ids(store.Active(nil)))

	got := store.Select(all)
	require.NotNil(t, got)
	assert.Equal(t, "high", got.ID)
}

func TestMemory_UpsertReplacesInPlace(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("a", 0, expectation.Exactly(1)))
	store.Upsert(newExpectation("b", 0, nil))

	res := store.Upsert(newExpectation("a", 0, expectation.Exactly(3)))
	assert.False(t, res.Created)
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, []string{"a", "b"}, ids(store.Active(nil)))

	got, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Times.RemainingTimes)
}

func TestMemory_SelectConsumes(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("once", 0, expectation.Once()))

	first := store.Select(all)
	require.NotNil(t, first)
	assert.Equal(t, 0, first.Times.RemainingTimes)

	assert.Nil(t, store.Select(all))
	assert.Zero(t, store.Count())
}

func TestMemory_SelectSkipsNonMatching(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("a", 10, nil))
	store.Upsert(newExpectation("b", 0, nil))

	got := store.Select(func(e *expectation.Expectation) bool { return e.ID == "b" })
	require.NotNil(t, got)
	assert.Equal(t, "b", got.ID)

	assert.Nil(t, store.Select(func(*expectation.Expectation) bool { return false }))
}

func TestMemory_ZeroRemainingIsInactive(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("spent", 0, expectation.Exactly(0)))

	assert.Empty(t, store.Active(nil))
	assert.Nil(t, store.Select(all))
	assert.Equal(t, 1, store.Count())

	swept := store.SweepExpired()
	assert.Equal(t, []string{"spent"}, ids(swept))
	assert.Zero(t, store.Count())
}

func TestMemory_TimeToLive(t *testing.T) {
	clock := id.NewFixed(epoch)
	store := NewMemoryStore(WithSource(clock))
	store.Upsert(newExpectation("short", 0, nil).WithTimeToLive(expectation.ExpiresIn(expectation.Seconds, 10)))
	store.Upsert(newExpectation("forever", 0, nil))

	got, err := store.Get("short")
	require.NoError(t, err)
	require.NotNil(t, got.TimeToLive.EndDate)
	assert.Equal(t, epoch.Add(10*time.Second), *got.TimeToLive.EndDate)

	clock.Advance(9 * time.Second)
	assert.Equal(t, []string{"short", "forever"}, ids(store.Active(nil)))

	clock.Advance(time.Second)
	assert.Equal(t, []string{"forever"}, ids(store.Active(nil)))
	assert.Equal(t, "forever", store.Select(all).ID)
	assert.Equal(t, 2, store.Count(), "expired expectations stay stored until swept")

	swept := store.SweepExpired()
	assert.Equal(t, []string{"short"}, ids(swept))
	assert.Equal(t, 1, store.Count())
}

func TestMemory_Remove(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("a", 0, nil))

	removed, err := store.Remove("a")
	require.NoError(t, err)
	assert.Equal(t, "a", removed.ID)

	_, err = store.Remove("a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_RemoveMatching(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("keep", 0, nil))
	store.Upsert(newExpectation("drop-1", 0, nil))
	store.Upsert(newExpectation("drop-2", 0, expectation.Exactly(0)))

	removed := store.RemoveMatching(func(e *expectation.Expectation) bool { return e.ID != "keep" })
	assert.ElementsMatch(t, []string{"drop-1", "drop-2"}, ids(removed))
	assert.Equal(t, []string{"keep"}, ids(store.Active(nil)))
}

func TestMemory_Reset(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("a", 0, nil))
	store.Upsert(newExpectation("b", 0, nil))

	assert.Equal(t, 2, store.Reset())
	assert.Zero(t, store.Count())
	assert.Empty(t, store.Active(nil))
}

func TestMemory_MaxExpectations(t *testing.T) {
	store := NewMemoryStore(WithMaxExpectations(2))
	store.Upsert(newExpectation("first", 10, nil))
	store.Upsert(newExpectation("second", 0, nil))

	res := store.Upsert(newExpectation("third", 0, nil))
	assert.Equal(t, []string{"first"}, ids(res.Evicted))
	assert.Equal(t, []string{"second", "third"}, ids(store.Active(nil)))

	// Replacing does not evict.
	res = store.Upsert(newExpectation("second", 0, nil))
	assert.Empty(t, res.Evicted)
}

func TestMemory_SnapshotsAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("a", 0, expectation.Exactly(2)))

	snap := store.Active(nil)[0]
	snap.Times.RemainingTimes = 100
	snap.Priority = 99

	got, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Times.RemainingTimes)
	assert.Equal(t, 0, got.Priority)
}

func TestMemory_ConcurrentSelect(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert(newExpectation("limited", 0, expectation.Exactly(50)))

	var wg sync.WaitGroup
	var hits atomic.Int64
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Select(all) != nil {
				hits.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), hits.Load())
	assert.Zero(t, store.Count())
}

func TestMemory_ConcurrentUpsertAndSelect(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Upsert(newExpectation(fmt.Sprintf("e-%d-%d", i, j), j%3, expectation.Once()))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.Select(all)
				store.Active(nil)
			}
		}()
	}
	wg.Wait()

	for store.Select(all) != nil {
	}
	assert.Zero(t, store.Count())
}
