package appcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock) *Cache {
	return New(Options{Now: clock.Now})
}

func TestCache_GetAfterSet_ReturnsData(t *testing.T) {
	c := newTestCache(newFakeClock())

	c.Set(KeyLeads, []string{"a", "b"})

	got, ok := c.Get(KeyLeads)
	if !ok {
		t.Fatal("expected hit right after Set")
	}
	if leads := got.([]string); len(leads) != 2 || leads[0] != "a" {
		t.Errorf("Get = %v, want [a b]", leads)
	}
}

func TestCache_Get_MissingKey(t *testing.T) {
	c := newTestCache(newFakeClock())

	if _, ok := c.Get(KeyJobs); ok {
		t.Error("expected miss for absent key")
	}
}

func TestCache_Get_ExpiresAtTTL(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	c.Set(KeyLeads, []string{"a"})

	clock.Advance(DefaultTTL - time.Millisecond)
	if _, ok := c.Get(KeyLeads); !ok {
		t.Fatal("expected hit just before TTL")
	}

	// now - lastFetch >= ttl で期限切れ
	clock.Advance(time.Millisecond)
	if _, ok := c.Get(KeyLeads); ok {
		t.Error("expected miss once age reaches TTL")
	}
}

func TestCache_PerKeyTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{
		TTL: map[Key]time.Duration{KeyJobs: time.Minute},
		Now: clock.Now,
	})

	if c.TTL(KeyJobs) != time.Minute {
		t.Errorf("TTL(jobs) = %v, want 1m", c.TTL(KeyJobs))
	}
	if c.TTL(KeyLeads) != DefaultTTL {
		t.Errorf("TTL(leads) = %v, want default", c.TTL(KeyLeads))
	}

	c.Set(KeyJobs, 1)
	c.Set(KeyLeads, 2)
	clock.Advance(2 * time.Minute)

	if _, ok := c.Get(KeyJobs); ok {
		t.Error("jobs should be stale after 2m")
	}
	if _, ok := c.Get(KeyLeads); !ok {
		t.Error("leads should still be fresh after 2m")
	}
}

func TestCache_Update_AbsentKeyIsNoop(t *testing.T) {
	c := newTestCache(newFakeClock())

	called := false
	if c.Update(KeyLeads, func(v any) any { called = true; return v }) {
		t.Error("Update should report false for absent key")
	}
	if called {
		t.Error("update func must not run for absent key")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCache_Update_ReplacesDataAndRefreshes(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(clock)
	c.Set(KeyLeads, []string{"a"})

	clock.Advance(4 * time.Minute)
	ok := c.Update(KeyLeads, func(v any) any {
		return append(v.([]string), "b")
	})
	if !ok {
		t.Fatal("Update should report true for present key")
	}

	// 更新から4分後。Set基準なら期限切れだが、Updateで鮮度が更新されている
	clock.Advance(4 * time.Minute)
	got, hit := c.Get(KeyLeads)
	if !hit {
		t.Fatal("expected hit after Update refreshed the timestamp")
	}
	if leads := got.([]string); len(leads) != 2 || leads[1] != "b" {
		t.Errorf("Get = %v, want [a b]", leads)
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Set(KeyLeads, 1)
	c.Set(KeyJobs, 2)

	c.Invalidate(KeyLeads)

	if _, ok := c.Get(KeyLeads); ok {
		t.Error("expected miss after Invalidate")
	}
	if _, ok := c.Get(KeyJobs); !ok {
		t.Error("Invalidate must not touch other keys")
	}
}

func TestCache_Clear(t *testing.T) {
	c := newTestCache(newFakeClock())
	for _, k := range []Key{KeyLeads, KeyTasks, KeyGoals, KeyEstimates, KeyJobs, KeyClients} {
		c.Set(k, string(k))
	}

	c.Clear()

	for _, k := range []Key{KeyLeads, KeyTasks, KeyGoals, KeyEstimates, KeyJobs, KeyClients} {
		if _, ok := c.Get(k); ok {
			t.Errorf("expected miss for %s after Clear", k)
		}
	}
}

func TestCache_Fetch_UsesFreshEntry(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Set(KeyLeads, "cached")

	got, err := c.Fetch(context.Background(), KeyLeads, func(ctx context.Context) (any, error) {
		t.Error("loader must not run on a fresh hit")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got != "cached" {
		t.Errorf("Fetch = %v, want cached", got)
	}
}

func TestCache_Fetch_LoaderErrorNotStored(t *testing.T) {
	c := newTestCache(newFakeClock())
	loadErr := errors.New("network down")

	_, err := c.Fetch(context.Background(), KeyLeads, func(ctx context.Context) (any, error) {
		return nil, loadErr
	})
	if !errors.Is(err, loadErr) {
		t.Fatalf("Fetch error = %v, want %v", err, loadErr)
	}
	if c.Len() != 0 {
		t.Error("failed load must not create an entry")
	}
}

func TestCache_Fetch_ConcurrentMissesShareOneLoad(t *testing.T) {
	c := newTestCache(newFakeClock())

	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(ctx context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "loaded", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	started := make(chan struct{}, callers)
	results := make(chan any, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			started <- struct{}{}
			v, err := c.Fetch(context.Background(), KeyLeads, loader)
			if err != nil {
				t.Errorf("Fetch error: %v", err)
			}
			results <- v
		}()
	}
	for range callers {
		<-started
	}
	// 全員がFetchに入るまで少し待ってから解放する
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for v := range results {
		if v != "loaded" {
			t.Errorf("result = %v, want loaded", v)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("loader calls = %d, want 1", n)
	}
}

func TestCache_Fetch_InvalidateDuringLoadIsNotUndone(t *testing.T) {
	c := newTestCache(newFakeClock())

	loading := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	loader := func(ctx context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(loading)
			<-release
			return "before-create", nil
		}
		return "after-create", nil
	}

	first := make(chan any, 1)
	go func() {
		v, _ := c.Fetch(context.Background(), KeyLeads, loader)
		first <- v
	}()
	<-loading

	// 作成後の再読み込み
	c.Invalidate(KeyLeads)
	v, err := c.Fetch(context.Background(), KeyLeads, loader)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if v != "after-create" {
		t.Errorf("fetch after invalidate = %v, want after-create (must not join the stale load)", v)
	}

	close(release)
	if got := <-first; got != "before-create" {
		t.Errorf("first caller = %v, want before-create", got)
	}
	if got, ok := c.Get(KeyLeads); !ok || got != "after-create" {
		t.Errorf("Get = %v, %v; stale load must not overwrite the newer entry", got, ok)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("loader calls = %d, want 2", n)
	}
}

func TestCache_Fetch_ClearDuringLoadDropsResult(t *testing.T) {
	c := newTestCache(newFakeClock())

	loading := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context) (any, error) {
		close(loading)
		<-release
		return "previous-user", nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Fetch(context.Background(), KeyLeads, loader)
	}()
	<-loading
	c.Clear()
	close(release)
	<-done

	if _, ok := c.Get(KeyLeads); ok {
		t.Error("data loaded before Clear must not be stored")
	}
}

func TestLoad_Typed(t *testing.T) {
	c := newTestCache(newFakeClock())

	calls := 0
	loader := func(ctx context.Context) ([]int, error) {
		calls++
		return []int{1, 2, 3}, nil
	}

	for range 2 {
		got, err := Load(context.Background(), c, KeyEstimates, loader)
		if err != nil {
			t.Fatalf("Load error: %v", err)
		}
		if len(got) != 3 {
			t.Errorf("Load = %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("loader calls = %d, want 1", calls)
	}
}

func TestLoad_WrongStoredTypeReloads(t *testing.T) {
	c := newTestCache(newFakeClock())
	c.Set(KeyClients, "not a slice")

	got, err := Load(context.Background(), c, KeyClients, func(ctx context.Context) ([]string, error) {
		return []string{"acme"}, nil
	})
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(got) != 1 || got[0] != "acme" {
		t.Errorf("Load = %v, want [acme]", got)
	}
}
