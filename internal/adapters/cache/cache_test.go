package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/shiftmetrics/internal/adapters/cache"
	"github.com/okian/shiftmetrics/internal/adapters/repository"
	"github.com/okian/shiftmetrics/internal/domain/model"
	"github.com/okian/shiftmetrics/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeKV is an in-memory KVStore with TTL.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]fakeItem
	err  error
}

type fakeItem struct {
	value   string
	expires time.Time
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]fakeItem)}
}

func (f *fakeKV) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	item, ok := f.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	if !item.expires.IsZero() && time.Now().After(item.expires) {
		delete(f.data, key)
		return "", cache.ErrCacheMiss
	}
	return item.value, nil
}

func (f *fakeKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	f.data[key] = fakeItem{value: value, expires: exp}
	return nil
}

const tail = 30 * time.Minute

func TestKey(t *testing.T) {
	Convey("Given a fingerprint", t, func() {
		last := time.Date(2026, 1, 29, 12, 0, 0, 0, time.UTC)
		fp := repository.Fingerprint{Count: 4, LastReceivedAt: last}

		Convey("Then the key should change when the fingerprint changes", func() {
			k1 := cache.Key(repository.ScopeWorker, "W1", tail, model.Window{}, fp)
			fp.Count++
			k2 := cache.Key(repository.ScopeWorker, "W1", tail, model.Window{}, fp)
			So(k1, ShouldNotEqual, k2)
			So(k1, ShouldStartWith, "shiftmetrics:worker:W1:30m0s:-:-:4:")
		})

		Convey("Then windows and entities should be distinct", func() {
			w := model.Window{From: last.Add(-time.Hour), To: last}
			So(cache.Key(repository.ScopeWorker, "W1", tail, w, fp), ShouldNotEqual, cache.Key(repository.ScopeWorker, "W1", tail, model.Window{}, fp))
			So(cache.Key(repository.ScopeWorker, "W1", tail, w, fp), ShouldNotEqual, cache.Key(repository.ScopeWorker, "W2", tail, w, fp))
		})

		Convey("Then a different tail should not share entries", func() {
			So(cache.Key(repository.ScopeWorker, "W1", tail, model.Window{}, fp),
				ShouldNotEqual, cache.Key(repository.ScopeWorker, "W1", 45*time.Minute, model.Window{}, fp))
		})
	})
}

func TestMetricsCache(t *testing.T) {
	ctx := context.Background()
	_ = logger.Init()

	Convey("Given a metrics cache over a fake store", t, func() {
		kv := newFakeKV()
		c := cache.New(kv, cache.WithTTL(time.Minute), cache.WithLogger(logger.Nop()))
		key := cache.Key(repository.ScopeWorker, "W1", tail, model.Window{}, repository.Fingerprint{Count: 1})
		want := model.WorkerMetric{WorkerID: "W1", Name: "John Smith", TotalActiveTimeMinutes: 60, UtilizationPercentage: 66.67}

		Convey("When nothing was stored", func() {
			var got model.WorkerMetric
			So(c.Get(ctx, repository.ScopeWorker, key, &got), ShouldBeFalse)
		})

		Convey("When a snapshot was stored", func() {
			c.Put(ctx, key, want)
			var got model.WorkerMetric
			So(c.Get(ctx, repository.ScopeWorker, key, &got), ShouldBeTrue)
			So(got, ShouldResemble, want)
		})

		Convey("When the backend fails", func() {
			kv.err = errors.New("connection refused")
			c.Put(ctx, key, want)
			var got model.WorkerMetric
			So(c.Get(ctx, repository.ScopeWorker, key, &got), ShouldBeFalse)
		})

		Convey("When the entry is corrupt", func() {
			So(kv.Set(ctx, key, "{not json", 0), ShouldBeNil)
			var got model.WorkerMetric
			So(c.Get(ctx, repository.ScopeWorker, key, &got), ShouldBeFalse)
		})
	})
}
