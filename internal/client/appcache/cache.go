// Package appcache はダッシュボードクライアントのリソース単位TTLキャッシュを提供する。
package appcache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key はキャッシュ対象のリソース名。
type Key string

const (
	KeyLeads     Key = "leads"
	KeyTasks     Key = "tasks"
	KeyGoals     Key = "goals"
	KeyEstimates Key = "estimates"
	KeyJobs      Key = "jobs"
	KeyClients   Key = "clients"
)

// DefaultTTL はTTL未指定のキーに適用される有効期間。
const DefaultTTL = 5 * time.Minute

// Options はキャッシュの設定。
type Options struct {
	// TTL はキーごとの有効期間。未指定のキーは DefaultTTL。
	TTL map[Key]time.Duration
	// Now は現在時刻を返す。nilの場合は time.Now。
	Now func() time.Time
}

type entry struct {
	data      any
	lastFetch time.Time
}

// Cache はキーごとに1件のエントリを保持するTTLキャッシュ。
// 容量上限や LRU による追い出しは行わず、Invalidate / Clear でのみ削除する。
// 並行利用に対して安全。
type Cache struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	ttl     map[Key]time.Duration
	now     func() time.Time
	group   singleflight.Group

	// gens と epoch は書き込みのたびに進む世代番号。
	// 取得中に Invalidate などが入った場合、その取得結果は格納しない。
	gens  map[Key]uint64
	epoch uint64
}

// New はCacheを生成する。
func New(opts Options) *Cache {
	ttl := make(map[Key]time.Duration, len(opts.TTL))
	for k, d := range opts.TTL {
		ttl[k] = d
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[Key]*entry),
		gens:    make(map[Key]uint64),
		ttl:     ttl,
		now:     now,
	}
}

// TTL はキーに適用される有効期間を返す。
func (c *Cache) TTL(key Key) time.Duration {
	if d, ok := c.ttl[key]; ok {
		return d
	}
	return DefaultTTL
}

// Get は新鮮なエントリのデータを返す。存在しないか期限切れの場合は (nil, false)。
func (c *Cache) Get(key Key) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.getLocked(key)
}

func (c *Cache) getLocked(key Key) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.lastFetch) >= c.TTL(key) {
		return nil, false
	}
	return e.data, true
}

// Set はエントリを上書きし、現在時刻を記録する。
func (c *Cache) Set(key Key, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	c.entries[key] = &entry{data: data, lastFetch: c.now()}
}

// Update は既存エントリのデータを fn の戻り値で置き換え、鮮度を更新する。
// キーが存在しない場合は何もせず false を返す。
// 期限切れのエントリも更新対象になる。
func (c *Cache) Update(key Key, fn func(any) any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	e.data = fn(e.data)
	e.lastFetch = c.now()
	c.gens[key]++
	return true
}

// Invalidate は1件のエントリを削除する。
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	delete(c.entries, key)
}

// Clear はすべてのエントリを削除する。ログアウトや復旧不能なエラーの際に呼ぶ。
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.entries = make(map[Key]*entry)
}

func (c *Cache) generation(key Key) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch + c.gens[key]
}

// storeIfCurrent は取得開始時から世代が変わっていない場合のみ格納する。
func (c *Cache) storeIfCurrent(key Key, data any, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch+c.gens[key] != gen {
		return false
	}
	c.entries[key] = &entry{data: data, lastFetch: c.now()}
	return true
}

// Len は保持しているエントリ数を返す（期限切れを含む）。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Fetch は新鮮なエントリがあればそれを返し、なければ loader で取得して格納する。
// 同じキーに対する同時のキャッシュミスは1回の loader 呼び出しを共有する。
// loader がエラーを返した場合は何も格納しない。
// 取得中に同じキーへの Invalidate / Set / Update / Clear があった場合、結果は呼び出し元に
// 返すが格納はしない。その後の呼び出しは進行中の取得を共有せず、新しく取得する。
func (c *Cache) Fetch(ctx context.Context, key Key, loader func(ctx context.Context) (any, error)) (any, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}

	gen := c.generation(key)
	flight := string(key) + "#" + strconv.FormatUint(gen, 10)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		// 待機中に別の呼び出しが格納している場合がある
		if data, ok := c.Get(key); ok {
			return data, nil
		}
		data, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.storeIfCurrent(key, data, gen)
		return data, nil
	})
	return v, err
}

// Load は Fetch の型付き版。格納済みデータの型が T と異なる場合は再取得する。
func Load[T any](ctx context.Context, c *Cache, key Key, loader func(ctx context.Context) (T, error)) (T, error) {
	if data, ok := c.Get(key); ok {
		if typed, ok := data.(T); ok {
			return typed, nil
		}
		c.Invalidate(key)
	}

	v, err := c.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		return loader(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, &TypeMismatchError{Key: key}
	}
	return typed, nil
}

// TypeMismatchError は格納済みデータが要求された型と一致しない場合のエラー。
type TypeMismatchError struct {
	Key Key
}

// Error はerrorインターフェースを実装する。
func (e *TypeMismatchError) Error() string {
	return "appcache: unexpected data type for key " + string(e.Key)
}
