package overlay

import (
	"html"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Event はオーバーレイ要素に対するユーザー操作。
type Event string

const (
	EventBackdropClick Event = "backdrop-click"
	EventCloseClick    Event = "close-click"
	EventSubmit        Event = "submit"
)

// Document はオーバーレイ要素を配置する描画先。
type Document interface {
	// Append は要素を追加する。
	Append(n *Node)
	// Remove は要素を取り除く。
	Remove(id string)
	// NextFrame は次の描画フレームで fn を実行する。
	NextFrame(fn func())
	// AfterTransition はフェードアウトのトランジション完了後に fn を実行する。
	AfterTransition(fn func())
}

// Node はオーバーレイ1件分の要素（背景とコンテナ）。
type Node struct {
	id     string
	zIndex int
	size   Size

	mu       sync.RWMutex
	title    string
	body     string
	footer   string
	visible  bool
	shakes   int
	fields   map[string]string
	handlers map[Event]func()
}

func newNode(id string, zIndex int, size Size, title string) *Node {
	return &Node{
		id:       id,
		zIndex:   zIndex,
		size:     size,
		title:    title,
		fields:   make(map[string]string),
		handlers: make(map[Event]func()),
	}
}

// ID は要素IDを返す。
func (n *Node) ID() string { return n.id }

// ZIndex は重なり順を返す。
func (n *Node) ZIndex() int { return n.zIndex }

// Title はタイトル（エスケープ前）を返す。
func (n *Node) Title() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.title
}

// Body は本文のマークアップを返す。
func (n *Node) Body() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.body
}

// Footer はフッターのマークアップを返す。
func (n *Node) Footer() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.footer
}

// Visible は表示状態（フェードイン済み）かどうかを返す。
func (n *Node) Visible() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.visible
}

// Shakes は入力エラーで揺らした回数を返す。
func (n *Node) Shakes() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.shakes
}

// SetField はフォーム入力値を設定する。
func (n *Node) SetField(name, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fields[name] = value
}

// Field はフォーム入力値を返す。
func (n *Node) Field(name string) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.fields[name]
}

// Dispatch はイベントハンドラーを呼び出す。ハンドラーがなければ false。
func (n *Node) Dispatch(ev Event) bool {
	n.mu.RLock()
	h := n.handlers[ev]
	n.mu.RUnlock()
	if h == nil {
		return false
	}
	h()
	return true
}

func (n *Node) on(ev Event, h func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[ev] = h
}

func (n *Node) setBody(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.body = s
}

func (n *Node) setFooter(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.footer = s
}

func (n *Node) setVisible(v bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visible = v
}

func (n *Node) shake() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shakes++
}

// HTML は要素全体のマークアップを返す。タイトルはエスケープし、本文とフッターはそのまま埋め込む。
func (n *Node) HTML() string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var b strings.Builder
	b.WriteString(`<div class="overlay-backdrop`)
	if n.visible {
		b.WriteString(` visible`)
	}
	b.WriteString(`" id="`)
	b.WriteString(html.EscapeString(n.id))
	b.WriteString(`" style="z-index:`)
	b.WriteString(strconv.Itoa(n.zIndex))
	b.WriteString(`"><div class="overlay-container overlay-`)
	b.WriteString(string(n.size))
	b.WriteString(`"><div class="overlay-header"><h2>`)
	b.WriteString(html.EscapeString(n.title))
	b.WriteString(`</h2><button class="overlay-close" aria-label="Close">&times;</button></div><div class="overlay-body">`)
	b.WriteString(n.body)
	b.WriteString(`</div>`)
	if n.footer != "" {
		b.WriteString(`<div class="overlay-footer">`)
		b.WriteString(n.footer)
		b.WriteString(`</div>`)
	}
	b.WriteString(`</div></div>`)
	return b.String()
}

// DefaultTransition はフェードアウトの既定時間。
const DefaultTransition = 300 * time.Millisecond

// MemoryDocument はメモリ上の Document 実装。
// NextFrame は同期的に実行し、AfterTransition は Transition 経過後に実行する。
type MemoryDocument struct {
	// Transition はフェードアウトの時間。0の場合は即時に完了する。
	Transition time.Duration

	mu    sync.RWMutex
	nodes map[string]*Node
	order []string
}

// NewMemoryDocument はMemoryDocumentを生成する。
func NewMemoryDocument(transition time.Duration) *MemoryDocument {
	return &MemoryDocument{
		Transition: transition,
		nodes:      make(map[string]*Node),
	}
}

// Append は要素を追加する。
func (d *MemoryDocument) Append(n *Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes[n.id] = n
	d.order = append(d.order, n.id)
}

// Remove は要素を取り除く。
func (d *MemoryDocument) Remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.nodes, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// NextFrame は fn を即時に実行する。
func (d *MemoryDocument) NextFrame(fn func()) {
	fn()
}

// AfterTransition は Transition 経過後に fn を実行する。
func (d *MemoryDocument) AfterTransition(fn func()) {
	if d.Transition <= 0 {
		fn()
		return
	}
	time.AfterFunc(d.Transition, fn)
}

// Node は要素を返す。
func (d *MemoryDocument) Node(id string) (*Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.nodes[id]
	return n, ok
}

// Len は配置されている要素数を返す。
func (d *MemoryDocument) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Top は最前面の要素を返す。
func (d *MemoryDocument) Top() (*Node, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var top *Node
	for _, id := range d.order {
		if n := d.nodes[id]; top == nil || n.zIndex > top.zIndex {
			top = n
		}
	}
	return top, top != nil
}
