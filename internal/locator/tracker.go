// 包 locator：跟踪单个用户的移动位置，重算最近候选并驱动路线聚合
package locator

import (
	"context"
	"fmt"
	"sync"

	"shelter-api/internal/aggregator"
	"shelter-api/internal/facility"
	"shelter-api/internal/geo"
	"shelter-api/internal/logger"
)

// CandidateObserver 候选集观察者
type CandidateObserver func(q geo.Coordinate, cs facility.CandidateSet)

// 文档注释：位置跟踪器
// 背景：查询点、类别过滤与设施代际均为显式输入；任一变化后重算最近候选，
// 仅当查询点或候选集实际变化时才开始新一轮聚合。
// 约束：更新操作串行执行；候选观察者在更新调用方协程中同步调用，不可在回调内再次更新同一跟踪器。
type Tracker struct {
	set *facility.Set
	agg *aggregator.Aggregator
	k   int
	ctx context.Context

	updMu sync.Mutex

	mu        sync.Mutex
	query     *geo.Coordinate
	filter    facility.Filter
	gen       uint64
	cands     facility.CandidateSet
	round     uint64
	observers map[int]CandidateObserver
	nextObs   int
}

// NewTracker 创建跟踪器；ctx 结束时正在进行的路由调用随之取消
func NewTracker(ctx context.Context, set *facility.Set, p aggregator.RouteCostProvider, k int, opts ...aggregator.Option) (*Tracker, error) {
	if k < 1 {
		return nil, fmt.Errorf("k=%d: %w", k, geo.ErrInvalidInput)
	}
	return &Tracker{
		set:       set,
		agg:       aggregator.New(p, opts...),
		k:         k,
		ctx:       ctx,
		observers: make(map[int]CandidateObserver),
	}, nil
}

// UpdatePosition 更新查询点；非法坐标返回 geo.ErrInvalidInput 且不改变状态
func (t *Tracker) UpdatePosition(q geo.Coordinate) error {
	if err := q.Validate(); err != nil {
		return err
	}
	t.update(func() { t.query = &q })
	return nil
}

// SetFilter 更新类别过滤
func (t *Tracker) SetFilter(f facility.Filter) {
	t.update(func() { t.filter = f })
}

// Refresh 设施代际替换后重算
func (t *Tracker) Refresh() {
	t.update(func() {})
}

func (t *Tracker) update(mutate func()) {
	t.updMu.Lock()
	defer t.updMu.Unlock()

	t.mu.Lock()
	prevQuery := t.query
	mutate()
	gen := t.set.Current()
	if t.query == nil {
		t.gen = gen.Seq
		t.mu.Unlock()
		return
	}
	cs, err := facility.FindNearest(t.query, gen.Facilities, t.k, t.filter)
	if err != nil {
		t.mu.Unlock()
		logger.L().Error("nearest_error", "err", err)
		return
	}
	queryChanged := prevQuery == nil || *prevQuery != *t.query
	candsChanged := !cs.SameFacilities(t.cands)
	t.gen = gen.Seq
	if !queryChanged && !candsChanged {
		t.mu.Unlock()
		return
	}
	t.cands = cs
	q := *t.query
	t.round = t.agg.Start(t.ctx, q, cs)
	obs := make([]CandidateObserver, 0, len(t.observers))
	for i := 0; i < t.nextObs; i++ {
		if fn, ok := t.observers[i]; ok {
			obs = append(obs, fn)
		}
	}
	round := t.round
	t.mu.Unlock()

	logger.L().Debug("candidates_updated", "round", round, "query", q.String(), "count", len(cs), "generation", gen.Seq)
	for _, fn := range obs {
		fn(q, cs)
	}
}

// Candidates 当前候选集
func (t *Tracker) Candidates() facility.CandidateSet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cands
}

// Query 当前查询点；尚未设置时返回 nil
func (t *Tracker) Query() *geo.Coordinate {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.query == nil {
		return nil
	}
	q := *t.query
	return &q
}

func (t *Tracker) Filter() facility.Filter {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter
}

// Generation 最近一次重算所用的设施代际
func (t *Tracker) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *Tracker) Snapshot() aggregator.Snapshot { return t.agg.Snapshot() }

// Wait 等待当前轮次结束；尚未开始任何轮次时立即返回 Idle 快照
func (t *Tracker) Wait(ctx context.Context) (aggregator.Snapshot, error) {
	t.mu.Lock()
	round := t.round
	t.mu.Unlock()
	if round == 0 {
		return t.agg.Snapshot(), nil
	}
	return t.agg.Wait(ctx, round)
}

// SubscribeCandidates 注册候选集观察者，返回取消函数
func (t *Tracker) SubscribeCandidates(fn CandidateObserver) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextObs
	t.nextObs++
	t.observers[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.observers, id)
	}
}

// SubscribeSnapshots 注册聚合快照观察者
func (t *Tracker) SubscribeSnapshots(fn aggregator.Observer) func() { return t.agg.Subscribe(fn) }

// Close 停止聚合器并等待在途路由调用退出
func (t *Tracker) Close() { t.agg.Stop() }
