package pool

import (
	"sync"
	"testing"

	"github.com/romeomihailus/socks5gateway/internal/proxy"
)

func mkProxy(host string, port int, lastUsed int64) proxy.Proxy {
	return proxy.Proxy{Kind: proxy.SOCKS5, Host: host, Port: port, LastUsed: lastUsed}
}

func TestPopLeastUsed_Order(t *testing.T) {
	p := New()
	p.Insert(mkProxy("p1", 1080, 100))
	p.Insert(mkProxy("p2", 1080, 200))
	p.Insert(mkProxy("p3", 1080, 300))

	got, err := p.PopLeastUsed()
	if err != nil {
		t.Fatal(err)
	}
	if got.Host != "p1" {
		t.Errorf("expected p1 first, got %s", got.Host)
	}
}

func TestPopLeastUsed_EmptyPool(t *testing.T) {
	p := New()
	if _, err := p.PopLeastUsed(); err != ErrEmptyPool {
		t.Errorf("expected ErrEmptyPool, got %v", err)
	}
}

func TestRotation_ThreeProxiesFourSelections(t *testing.T) {
	p := New()
	p.Insert(mkProxy("p1", 1080, 100))
	p.Insert(mkProxy("p2", 1080, 200))
	p.Insert(mkProxy("p3", 1080, 300))

	want := []string{"p1", "p2", "p3", "p1"}
	for i, w := range want {
		px, err := p.Select(int64(1000 + i))
		if err != nil {
			t.Fatal(err)
		}
		if px.Host != w {
			t.Errorf("selection %d: want %s, got %s", i, w, px.Host)
		}
	}
}

func TestInsert_DuplicateIdentity_ShadowFieldsWin(t *testing.T) {
	p := New()
	p.Insert(mkProxy("1.2.3.4", 1080, 10))
	p.Insert(mkProxy("1.2.3.4", 1080, 500))

	if p.Len() != 1 {
		t.Fatalf("expected 1 entry after duplicate insert, got %d", p.Len())
	}
	got, err := p.PopLeastUsed()
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUsed != 500 {
		t.Errorf("expected second insert's LastUsed=500 to win, got %d", got.LastUsed)
	}
}

func TestInsertRemove_Idempotence(t *testing.T) {
	p := New()
	px := mkProxy("1.2.3.4", 1080, 10)
	p.Insert(px)
	p.Remove(px.Identity())
	if p.Len() != 0 {
		t.Errorf("expected empty pool after insert+remove, got %d", p.Len())
	}
}

func TestRemove_AbsentIsNoOp(t *testing.T) {
	p := New()
	p.Remove(proxy.Identity{Kind: proxy.HTTP, Host: "nowhere", Port: 1})
	if p.Len() != 0 {
		t.Errorf("expected pool to remain empty, got %d", p.Len())
	}
}

func TestTouchUsed_Idempotent(t *testing.T) {
	p := New()
	px := mkProxy("1.2.3.4", 1080, 10)
	p.Insert(px)

	p.TouchUsed(px.Identity(), 999)
	p.TouchUsed(px.Identity(), 999)

	got, err := p.PopLeastUsed()
	if err != nil {
		t.Fatal(err)
	}
	if got.LastUsed != 999 {
		t.Errorf("expected LastUsed=999, got %d", got.LastUsed)
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	p := New()
	p.Insert(proxy.Proxy{Kind: proxy.HTTP, Host: "1.2.3.4", Port: 8080, Country: "US", LastChecked: 111, LastUsed: 222})
	p.Insert(proxy.Proxy{Kind: proxy.SOCKS5, Host: "5.6.7.8", Port: 1080, Country: "DE", LastChecked: 333, LastUsed: 444})

	data, err := p.Save()
	if err != nil {
		t.Fatal(err)
	}

	p2 := New()
	if err := p2.Load(data); err != nil {
		t.Fatal(err)
	}

	orig := p.Snapshot()
	loaded := p2.Snapshot()
	if len(orig) != len(loaded) {
		t.Fatalf("length mismatch: %d vs %d", len(orig), len(loaded))
	}

	byID := make(map[proxy.Identity]proxy.Proxy)
	for _, px := range loaded {
		byID[px.Identity()] = px
	}
	for _, px := range orig {
		got, ok := byID[px.Identity()]
		if !ok {
			t.Fatalf("missing proxy %v after round trip", px.Identity())
		}
		if got != px {
			t.Errorf("round trip mismatch: want %+v, got %+v", px, got)
		}
	}
}

func TestSelect_ConcurrentCallersGetDistinctProxies(t *testing.T) {
	p := New()
	const n = 50
	for i := 0; i < n; i++ {
		p.Insert(mkProxy("host", 10000+i, int64(i)))
	}

	var wg sync.WaitGroup
	results := make(chan proxy.Identity, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			px, err := p.Select(int64(1000 + i))
			if err != nil {
				t.Error(err)
				return
			}
			results <- px.Identity()
		}(i)
	}
	wg.Wait()
	close(results)

	seen := make(map[proxy.Identity]bool)
	for id := range results {
		if seen[id] {
			t.Fatalf("duplicate selection for %v", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct selections, got %d", n, len(seen))
	}
}

func TestSnapshot_UnorderedCopy(t *testing.T) {
	p := New()
	p.Insert(mkProxy("p1", 1, 1))
	p.Insert(mkProxy("p2", 2, 2))
	snap := p.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 proxies, got %d", len(snap))
	}
	// Mutating the returned slice must not affect the pool.
	snap[0].Country = "mutated"
	if p.Len() != 2 {
		t.Fatalf("unexpected pool length change: %d", p.Len())
	}
	for _, px := range p.Snapshot() {
		if px.Country == "mutated" {
			t.Fatalf("mutating the snapshot changed pool entry %v", px.Identity())
		}
	}
}
