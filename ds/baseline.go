package ds

import (
	"fmt"

	"github.com/coocood/freecache"
	"github.com/dgraph-io/ristretto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maypok86/otter/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/vmihailenco/go-tinylfu"
	"github.com/zhangyunhao116/skipmap"
)

// Baselines wrap third-party concurrent maps and caches. They ignore the
// cursor: their memory is managed by the Go collector, so every reclamation
// scheme measures the same code. Caches are sized so the key range never
// triggers eviction. Insert on caches reads the previous value before writing
// it and is therefore not atomic.

func newBaseline(kind Kind, capacity int) (Map[string, string], error) {
	switch kind {
	case Otter:
		return &otterMap{c: otter.Must(&otter.Options[string, string]{MaximumSize: capacity * 2})}, nil
	case Ristretto:
		c, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: int64(capacity * 10),
			MaxCost:     int64(capacity * 2),
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("ristretto: %w", err)
		}
		return &ristrettoMap{c: c}, nil
	case LRU:
		c, err := lru.New[string, string](capacity * 2)
		if err != nil {
			return nil, fmt.Errorf("lru: %w", err)
		}
		return &lruMap{c: c}, nil
	case Freecache:
		// ~64 bytes per entry, floored at freecache's minimum.
		return &freecacheMap{c: freecache.NewCache(max(capacity*64, 512*1024))}, nil
	case TinyLFU:
		return &tinylfuMap{c: tinylfu.NewSync(capacity*2, capacity*10)}, nil
	case XSync:
		return &xsyncMap{m: xsync.NewMap[string, string]()}, nil
	case SkipMap:
		return &skipMap{m: skipmap.New[string, string]()}, nil
	default:
		return nil, fmt.Errorf("%w: %v is not a baseline", ErrUnknownKind, kind)
	}
}

type otterMap struct {
	c *otter.Cache[string, string]
}

func (m *otterMap) Get(_ *Cursor, key string) (string, bool) {
	return m.c.GetIfPresent(key)
}

func (m *otterMap) Insert(_ *Cursor, key, value string) (string, bool) {
	old, ok := m.c.GetIfPresent(key)
	m.c.Set(key, value)
	return old, ok
}

func (m *otterMap) Remove(_ *Cursor, key string) (string, bool) {
	old, ok := m.c.GetIfPresent(key)
	if ok {
		m.c.Invalidate(key)
	}
	return old, ok
}

type ristrettoMap struct {
	c *ristretto.Cache
}

func (m *ristrettoMap) Get(_ *Cursor, key string) (string, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *ristrettoMap) Insert(c *Cursor, key, value string) (string, bool) {
	old, ok := m.Get(c, key)
	m.c.Set(key, value, 1)
	return old, ok
}

func (m *ristrettoMap) Remove(c *Cursor, key string) (string, bool) {
	old, ok := m.Get(c, key)
	if ok {
		m.c.Del(key)
	}
	return old, ok
}

type lruMap struct {
	c *lru.Cache[string, string]
}

func (m *lruMap) Get(_ *Cursor, key string) (string, bool) {
	return m.c.Get(key)
}

func (m *lruMap) Insert(_ *Cursor, key, value string) (string, bool) {
	old, ok := m.c.Peek(key)
	m.c.Add(key, value)
	return old, ok
}

func (m *lruMap) Remove(_ *Cursor, key string) (string, bool) {
	old, ok := m.c.Peek(key)
	if ok {
		m.c.Remove(key)
	}
	return old, ok
}

func (m *lruMap) Len() int { return m.c.Len() }

type freecacheMap struct {
	c *freecache.Cache
}

func (m *freecacheMap) Get(_ *Cursor, key string) (string, bool) {
	v, err := m.c.Get([]byte(key))
	if err != nil {
		return "", false
	}
	return string(v), true
}

func (m *freecacheMap) Insert(c *Cursor, key, value string) (string, bool) {
	old, ok := m.Get(c, key)
	//nolint:errcheck // only fails for entries larger than a segment
	m.c.Set([]byte(key), []byte(value), 0)
	return old, ok
}

func (m *freecacheMap) Remove(c *Cursor, key string) (string, bool) {
	old, ok := m.Get(c, key)
	if ok {
		m.c.Del([]byte(key))
	}
	return old, ok
}

type tinylfuMap struct {
	c *tinylfu.SyncT
}

func (m *tinylfuMap) Get(_ *Cursor, key string) (string, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *tinylfuMap) Insert(c *Cursor, key, value string) (string, bool) {
	old, ok := m.Get(c, key)
	m.c.Set(&tinylfu.Item{Key: key, Value: value})
	return old, ok
}

func (m *tinylfuMap) Remove(c *Cursor, key string) (string, bool) {
	old, ok := m.Get(c, key)
	if ok {
		m.c.Del(key)
	}
	return old, ok
}

type xsyncMap struct {
	m *xsync.Map[string, string]
}

func (m *xsyncMap) Get(_ *Cursor, key string) (string, bool) {
	return m.m.Load(key)
}

func (m *xsyncMap) Insert(_ *Cursor, key, value string) (string, bool) {
	return m.m.LoadAndStore(key, value)
}

func (m *xsyncMap) Remove(_ *Cursor, key string) (string, bool) {
	return m.m.LoadAndDelete(key)
}

type skipMap struct {
	m *skipmap.OrderedMap[string, string]
}

func (m *skipMap) Get(_ *Cursor, key string) (string, bool) {
	return m.m.Load(key)
}

func (m *skipMap) Insert(_ *Cursor, key, value string) (string, bool) {
	old, ok := m.m.Load(key)
	m.m.Store(key, value)
	return old, ok
}

func (m *skipMap) Remove(_ *Cursor, key string) (string, bool) {
	return m.m.LoadAndDelete(key)
}

func (m *skipMap) Len() int { return m.m.Len() }
