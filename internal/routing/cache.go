package routing

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"shelter-api/internal/geo"
	"shelter-api/internal/metrics"
)

// 文档注释：路线缓存键
// 约束：按精确坐标取键，不做网格量化；相邻查询点或同址不同设施各自回源，快照中的结果始终对应本轮查询点。
func cacheKey(origin, dest geo.Coordinate) string {
	return "route:foot:" + exact(origin) + ":" + exact(dest)
}

func exact(c geo.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'g', -1, 64) + "," + strconv.FormatFloat(c.Lon, 'g', -1, 64)
}

// 文档注释：进程内 LRU 路线缓存（装饰器）
// 背景：候选集合未变而轮次重启（过滤条件往返、会话刷新）时重复计算同一对坐标，进程内缓存降低外部调用与配额消耗；TTL 可调。
// 约束：只缓存成功结果；不可达与失败每次都透传给下游。
type LRU struct {
	next Provider
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type kv struct {
	k   string
	v   RouteResult
	exp time.Time
}

func NewLRU(next Provider, capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 4096
	}
	return &LRU{next: next, cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *LRU) Name() string                        { return c.next.Name() }
func (c *LRU) Heartbeat(ctx context.Context) error { return c.next.Heartbeat(ctx) }

func (c *LRU) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (RouteResult, error) {
	k := cacheKey(origin, dest)
	if v, ok := c.get(k); ok {
		metrics.CacheHitsTotal.WithLabelValues("lru").Inc()
		return v, nil
	}
	metrics.CacheMissesTotal.WithLabelValues("lru").Inc()
	v, err := c.next.ComputeRoute(ctx, origin, dest)
	if err != nil {
		return v, err
	}
	c.set(k, v)
	return v, nil
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}

func (c *LRU) get(k string) (RouteResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(kv)
		if c.now().Before(it.exp) {
			c.lst.MoveToFront(e)
			return it.v, true
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	return RouteResult{}, false
}

func (c *LRU) set(k string, v RouteResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := c.now().Add(c.ttl)
	if e, ok := c.dict[k]; ok {
		e.Value = kv{k: k, v: v, exp: exp}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(kv{k: k, v: v, exp: exp})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		it := back.Value.(kv)
		delete(c.dict, it.k)
		c.lst.Remove(back)
	}
}
