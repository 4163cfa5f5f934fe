// Package pool owns the in-memory set of candidate upstream proxies. It
// enforces (kind, host, port) uniqueness, serves least-recently-used
// selection in O(log n), and persists snapshots to a JSON file.
package pool

import (
	"container/heap"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/romeomihailus/socks5gateway/internal/proxy"
)

// ErrEmptyPool is returned by PopLeastUsed and Select when the pool holds no
// candidates.
var ErrEmptyPool = errors.New("pool: empty")

// entry is the heap/map-shared record for one proxy. index is maintained by
// container/heap so Fix/Remove can locate it in O(log n).
type entry struct {
	proxy proxy.Proxy
	index int
}

// lruHeap orders entries by last_used ascending, with an identity tiebreak
// so two proxies sharing a timestamp never compare equal. This is the
// priority index half of the map+heap split from the design notes:
// identity lives in Pool.byID, ordering lives here.
type lruHeap []*entry

func (h lruHeap) Len() int { return len(h) }

func (h lruHeap) Less(i, j int) bool {
	a, b := h[i].proxy, h[j].proxy
	if a.LastUsed != b.LastUsed {
		return a.LastUsed < b.LastUsed
	}
	ai, bi := a.Identity(), b.Identity()
	if ai.Kind != bi.Kind {
		return ai.Kind < bi.Kind
	}
	if ai.Host != bi.Host {
		return ai.Host < bi.Host
	}
	return ai.Port < bi.Port
}

func (h lruHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *lruHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *lruHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Pool is the concurrency-safe, identity-unique, LRU-ordered proxy set.
// All mutations and reads hold a single mutex; the critical section never
// performs I/O.
type Pool struct {
	mu   sync.Mutex
	byID map[proxy.Identity]*entry
	h    lruHeap
}

// New returns an empty pool.
func New() *Pool {
	return &Pool{byID: make(map[proxy.Identity]*entry)}
}

// Insert adds px. If an entry with the same identity already exists, its
// shadow fields (Country, LastChecked, LastUsed) are replaced with px's —
// the "duplicate identity insert" law: the second insert's shadow fields
// win, not a second entry.
func (p *Pool) Insert(px proxy.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.insertLocked(px)
}

func (p *Pool) insertLocked(px proxy.Proxy) {
	id := px.Identity()
	if e, ok := p.byID[id]; ok {
		e.proxy = px
		heap.Fix(&p.h, e.index)
		return
	}
	e := &entry{proxy: px}
	heap.Push(&p.h, e)
	p.byID[id] = e
}

// Remove deletes the entry matching id. No-op if absent.
func (p *Pool) Remove(id proxy.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(id)
}

func (p *Pool) removeLocked(id proxy.Identity) {
	e, ok := p.byID[id]
	if !ok {
		return
	}
	heap.Remove(&p.h, e.index)
	delete(p.byID, id)
}

// PopLeastUsed removes and returns the entry with the minimum last_used.
// Returns ErrEmptyPool if the pool is empty.
func (p *Pool) PopLeastUsed() (proxy.Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.popLeastUsedLocked()
}

func (p *Pool) popLeastUsedLocked() (proxy.Proxy, error) {
	if p.h.Len() == 0 {
		return proxy.Proxy{}, ErrEmptyPool
	}
	e := heap.Pop(&p.h).(*entry)
	delete(p.byID, e.proxy.Identity())
	return e.proxy, nil
}

// TouchUsed updates last_used for id to ts. No-op if id is absent. Calling
// this twice with the same (id, ts) is idempotent, same as calling it once.
func (p *Pool) TouchUsed(id proxy.Identity, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touchUsedLocked(id, ts)
}

func (p *Pool) touchUsedLocked(id proxy.Identity, ts int64) {
	e, ok := p.byID[id]
	if !ok {
		return
	}
	e.proxy.LastUsed = ts
	heap.Fix(&p.h, e.index)
}

// Select performs the Gateway's selection discipline atomically: pop the
// least-recently-used proxy, stamp its last_used, and reinsert it, all
// under one lock acquisition. This guarantees that two concurrent callers
// racing the selection point never receive the same proxy — no other
// caller can observe the popped entry between pop and reinsert because the
// whole sequence runs without releasing the mutex.
func (p *Pool) Select(now int64) (proxy.Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	px, err := p.popLeastUsedLocked()
	if err != nil {
		return proxy.Proxy{}, err
	}
	px.LastUsed = now
	p.insertLocked(px)
	return px, nil
}

// Snapshot returns an unordered copy of every proxy currently in the pool.
// The copy is assembled under the lock; callers iterate it lock-free.
func (p *Pool) Snapshot() []proxy.Proxy {
	p.mu.Lock()
	out := make([]proxy.Proxy, 0, len(p.h))
	for _, e := range p.h {
		out = append(out, e.proxy)
	}
	p.mu.Unlock()
	return out
}

// Len returns the number of proxies currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.h.Len()
}

// Save serializes the full pool as JSON.
func (p *Pool) Save() ([]byte, error) {
	return json.MarshalIndent(p.Snapshot(), "", "  ")
}

// Load replaces the pool's contents with the proxies encoded in data.
func (p *Pool) Load(data []byte) error {
	var proxies []proxy.Proxy
	if err := json.Unmarshal(data, &proxies); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID = make(map[proxy.Identity]*entry)
	p.h = nil
	for _, px := range proxies {
		p.insertLocked(px)
	}
	return nil
}

// LoadFile reads and loads a snapshot from path. A missing file is not an
// error; the pool is simply left empty (the "bootstrap with no pool file"
// startup scenario).
func (p *Pool) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return p.Load(data)
}

// SaveFile writes the current snapshot to path as a full-file replacement:
// write to a temp file in the same directory, then rename, so a crash
// mid-write never corrupts the last good snapshot.
func (p *Pool) SaveFile(path string) error {
	data, err := p.Save()
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pool-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
