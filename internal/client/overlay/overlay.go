// Package overlay はモーダルオーバーレイの登録・表示・破棄を管理する。
// 種類ごとのコンストラクタを Manager に登録し、Open ごとに新しいインスタンスを生成する。
package overlay

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"sync"
)

// Size はオーバーレイの幅。
type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Overlay はオーバーレイの種類ごとの実装。
type Overlay interface {
	Title() string
	Size() Size
	// RenderBody は本文のマークアップを返す。ユーザー入力は実装側でエスケープする。
	RenderBody() string
	// OnMount は描画後に呼ばれる。ctx はオーバーレイの破棄時にキャンセルされる。
	OnMount(ctx context.Context) error
	// OnDestroy は破棄の開始時に呼ばれる。
	OnDestroy()
}

// FooterRenderer はフッターを持つオーバーレイが実装する。
type FooterRenderer interface {
	RenderFooter() string
}

// BodyUpdateHook は本文の再描画のたびに呼ばれる。フォームのハンドラー登録に使う。
type BodyUpdateHook interface {
	OnBodyUpdate()
}

// InitialLoader は OnMount でデータを取得するオーバーレイが実装する。
// true の場合、最初の描画は読み込み中表示になる。
type InitialLoader interface {
	LoadsOnMount() bool
}

// Data は Open の呼び出し元が渡すコンテキスト（リードIDなど）。
type Data map[string]string

// Constructor はオーバーレイを生成する。
type Constructor func(b *Base) Overlay

// LoadingHTML は読み込み中の本文。
const LoadingHTML = `<div class="overlay-loading"><div class="spinner"></div><p>Loading...</p></div>`

// Base はオーバーレイ1件のライフサイクルと描画プリミティブを提供する。
type Base struct {
	id     string
	kind   string
	zIndex int
	data   Data

	doc     Document
	node    *Node
	overlay Overlay
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	loading   bool
	destroyed bool

	mounted     chan struct{}
	done        chan struct{}
	destroyOnce sync.Once
	closeFn     func() (<-chan struct{}, bool)
}

// ID はオーバーレイIDを返す。
func (b *Base) ID() string { return b.id }

// Kind は種類名を返す。
func (b *Base) Kind() string { return b.kind }

// ZIndex は重なり順を返す。
func (b *Base) ZIndex() int { return b.zIndex }

// Context は破棄時にキャンセルされるコンテキストを返す。
func (b *Base) Context() context.Context { return b.ctx }

// Node は描画先の要素を返す。
func (b *Base) Node() *Node { return b.node }

// Overlay は種類ごとの実装を返す。
func (b *Base) Overlay() Overlay { return b.overlay }

// Data は Open 時に渡された値を返す。
func (b *Base) Data(key string) string {
	return b.data[key]
}

// Mounted は OnMount の完了時に閉じられるチャネルを返す。
func (b *Base) Mounted() <-chan struct{} { return b.mounted }

// IsLoading は読み込み中表示かどうかを返す。
func (b *Base) IsLoading() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading
}

// IsDestroyed は破棄済みかどうかを返す。
func (b *Base) IsDestroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}

// FormValue はフォーム入力値を返す。
func (b *Base) FormValue(name string) string {
	return b.node.Field(name)
}

// Shake は入力エラーを示すため要素を揺らす。
func (b *Base) Shake() {
	b.whileLive(b.node.shake)
}

// On は要素のイベントハンドラーを登録する。
func (b *Base) On(ev Event, h func()) {
	b.node.on(ev, h)
}

// ShowLoading は本文を読み込み中表示にする。
func (b *Base) ShowLoading() bool {
	return b.whileLive(func() {
		b.loading = true
		b.node.setBody(LoadingHTML)
	})
}

// HideLoading は読み込み中表示を解除し、RenderBody で本文を再描画する。
func (b *Base) HideLoading() bool {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return false
	}
	b.loading = false
	b.mu.Unlock()
	return b.UpdateBody(b.overlay.RenderBody())
}

// ShowError は本文をエラー表示にする。
func (b *Base) ShowError(message string) bool {
	b.mu.Lock()
	if b.destroyed {
		b.mu.Unlock()
		return false
	}
	b.loading = false
	b.mu.Unlock()
	return b.UpdateBody(`<div class="overlay-error"><p>` + html.EscapeString(message) + `</p></div>`)
}

// UpdateBody は本文を置き換える。markup はエスケープしない。
// 破棄済みのオーバーレイへの更新は破棄して false を返す。
func (b *Base) UpdateBody(markup string) bool {
	if !b.whileLive(func() { b.node.setBody(markup) }) {
		return false
	}
	if hook, ok := b.overlay.(BodyUpdateHook); ok {
		hook.OnBodyUpdate()
	}
	return true
}

// UpdateFooter はフッターを置き換える。
func (b *Base) UpdateFooter(markup string) bool {
	return b.whileLive(func() { b.node.setFooter(markup) })
}

// whileLive は破棄済みでなければ b.mu を保持したまま fn を実行する。
// destroy も b.mu を取るため、破棄の開始後に fn が走ることはない。
func (b *Base) whileLive(fn func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return false
	}
	fn()
	return true
}

// Close は自身を閉じる。戻り値は要素の除去完了で閉じられる。
func (b *Base) Close() <-chan struct{} {
	if b.closeFn != nil {
		if done, ok := b.closeFn(); ok {
			return done
		}
	}
	return b.destroy()
}

func (b *Base) render() {
	if l, ok := b.overlay.(InitialLoader); ok && l.LoadsOnMount() {
		b.loading = true
	}

	b.node = newNode(b.id, b.zIndex, b.overlay.Size(), b.overlay.Title())
	if b.loading {
		b.node.setBody(LoadingHTML)
	} else {
		b.node.setBody(b.overlay.RenderBody())
	}
	if f, ok := b.overlay.(FooterRenderer); ok {
		b.node.setFooter(f.RenderFooter())
	}

	b.doc.Append(b.node)
	b.doc.NextFrame(func() {
		if !b.IsDestroyed() {
			b.node.setVisible(true)
		}
	})

	closeHandler := func() { b.Close() }
	b.node.on(EventBackdropClick, closeHandler)
	b.node.on(EventCloseClick, closeHandler)

	if hook, ok := b.overlay.(BodyUpdateHook); ok && !b.loading {
		hook.OnBodyUpdate()
	}
}

func (b *Base) mount() {
	defer close(b.mounted)

	err := b.overlay.OnMount(b.ctx)
	if err == nil || b.ctx.Err() != nil {
		return
	}
	b.logger.Warn("overlay mount failed",
		slog.String("overlay", b.kind),
		slog.String("id", b.id),
		slog.String("error", err.Error()),
	)
	b.ShowError(err.Error())
}

// destroy は破棄フックを呼び、フェードアウト後に要素を除去する。
func (b *Base) destroy() <-chan struct{} {
	b.destroyOnce.Do(func() {
		b.mu.Lock()
		b.destroyed = true
		b.mu.Unlock()

		b.cancel()
		b.overlay.OnDestroy()
		b.node.setVisible(false)
		b.doc.AfterTransition(func() {
			b.doc.Remove(b.id)
			close(b.done)
		})
	})
	return b.done
}

// BaseZIndex は最初のオーバーレイの重なり順。
const BaseZIndex = 1000

// ErrUnknownKind は登録されていない種類が指定されたことを表す。
var ErrUnknownKind = errors.New("overlay: unknown kind")

// Manager はオーバーレイの種類の登録と、表示中インスタンスの管理を行う。
type Manager struct {
	doc    Document
	logger *slog.Logger

	mu       sync.Mutex
	registry map[string]Constructor
	open     map[string]*Base
	seq      int
}

// NewManager はManagerを生成する。
func NewManager(doc Document, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		doc:      doc,
		logger:   logger,
		registry: make(map[string]Constructor),
		open:     make(map[string]*Base),
	}
}

// Register は種類名とコンストラクタを登録する。
func (m *Manager) Register(kind string, c Constructor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[kind] = c
}

// Open は新しいインスタンスを生成して描画し、IDを返す。
// OnMount は別のgoroutineで実行され、Open はその完了を待たない。
func (m *Manager) Open(ctx context.Context, kind string, data Data) (string, error) {
	m.mu.Lock()
	c, ok := m.registry[kind]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	m.seq++
	id := fmt.Sprintf("overlay-%d", m.seq)
	zIndex := BaseZIndex + m.seq
	m.mu.Unlock()

	copied := make(Data, len(data))
	for k, v := range data {
		copied[k] = v
	}

	mountCtx, cancel := context.WithCancel(ctx)
	b := &Base{
		id:      id,
		kind:    kind,
		zIndex:  zIndex,
		data:    copied,
		doc:     m.doc,
		logger:  m.logger,
		ctx:     mountCtx,
		cancel:  cancel,
		mounted: make(chan struct{}),
		done:    make(chan struct{}),
	}
	b.closeFn = func() (<-chan struct{}, bool) { return m.Close(id) }
	b.overlay = c(b)
	b.render()

	if !b.IsDestroyed() {
		m.mu.Lock()
		m.open[id] = b
		m.mu.Unlock()
	}

	go b.mount()

	m.logger.Debug("overlay opened", slog.String("overlay", kind), slog.String("id", id))
	return id, nil
}

// Close はインスタンスを破棄して登録を解除する。
// 戻り値のチャネルは要素が描画先から除去された時点で閉じられる。
func (m *Manager) Close(id string) (<-chan struct{}, bool) {
	m.mu.Lock()
	b, ok := m.open[id]
	if ok {
		delete(m.open, id)
	}
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return b.destroy(), true
}

// CloseAll は表示中のすべてのオーバーレイを閉じる。
// 戻り値のチャネルはすべての要素が除去された時点で閉じられる。
func (m *Manager) CloseAll() <-chan struct{} {
	var waits []<-chan struct{}
	for _, id := range m.IDs() {
		if done, ok := m.Close(id); ok {
			waits = append(waits, done)
		}
	}

	all := make(chan struct{})
	go func() {
		for _, w := range waits {
			<-w
		}
		close(all)
	}()
	return all
}

// Get は表示中のインスタンスを返す。
func (m *Manager) Get(id string) (*Base, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.open[id]
	return b, ok
}

// IDs は表示中のIDを生成順に返す。
func (m *Manager) IDs() []string {
	m.mu.Lock()
	bases := make([]*Base, 0, len(m.open))
	for _, b := range m.open {
		bases = append(bases, b)
	}
	m.mu.Unlock()

	sort.Slice(bases, func(i, j int) bool { return bases[i].zIndex < bases[j].zIndex })
	ids := make([]string, len(bases))
	for i, b := range bases {
		ids[i] = b.id
	}
	return ids
}

// Len は表示中のオーバーレイ数を返す。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}
