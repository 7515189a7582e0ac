package aggregator

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter-api/internal/facility"
	"shelter-api/internal/geo"
	"shelter-api/internal/routing"
)

type providerFunc func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error)

func (f providerFunc) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
	return f(ctx, origin, dest)
}

// 直线距离提供方：结果依赖查询点，跨轮次串用结果时可直接看出
func straight(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
	d := geo.Distance(origin, dest)
	return routing.RouteResult{DistanceMeters: d, ETAMillis: routing.WalkingETAMillis(d, 0)}, nil
}

var (
	q1 = geo.Coordinate{Lat: 50.4001, Lon: 30.6234}
	q2 = geo.Coordinate{Lat: 50.4501, Lon: 30.5234}
)

func cand(t *testing.T, id facility.ID, lat, lon float64) facility.Candidate {
	t.Helper()
	g, err := facility.New(id, geo.Coordinate{Lat: lat, Lon: lon}, facility.CategoryShelter, facility.Attributes{})
	require.NoError(t, err)
	return facility.Candidate{Facility: g}
}

func keys(s Snapshot) []facility.ID {
	out := make([]facility.ID, 0, len(s.Outcomes))
	for k := range s.Outcomes {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func waitDone(t *testing.T, a *Aggregator, id uint64) Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := a.Wait(ctx, id)
	require.NoError(t, err, "Wait(%d)", id)
	return s
}

func TestSupersededRoundNeverLeaks(t *testing.T) {
	x, y, z := cand(t, 1, 50.41, 30.62), cand(t, 2, 50.42, 30.61), cand(t, 3, 50.43, 30.60)
	release := make(chan struct{})
	var late atomic.Int32
	p := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		if origin == q1 {
			// 忽略取消，在第二轮开始后才返回
			<-release
			late.Add(1)
		}
		return straight(ctx, origin, dest)
	})
	a := New(p)
	defer a.Stop()

	r1 := a.Start(context.Background(), q1, facility.CandidateSet{x, y})
	r2 := a.Start(context.Background(), q2, facility.CandidateSet{y, z})
	close(release)
	s := waitDone(t, a, r2)
	require.Greater(t, r2, r1)
	assert.Equal(t, StateCompleted, s.State)
	assert.Equal(t, []facility.ID{2, 3}, keys(s))

	// 等第一轮迟到结果全部返回后再检查
	for late.Load() < 2 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	s = a.Snapshot()
	assert.Equal(t, []facility.ID{2, 3}, keys(s))
	require.True(t, s.Outcomes[2].OK())
	assert.Equal(t, geo.Distance(q2, y.Facility.Coordinate()), s.Outcomes[2].Result.DistanceMeters, "应为第二轮查询点的结果")
}

// cachedStraight 满足 routing.Provider，用于经过路线缓存装饰器
type cachedStraight struct{}

func (cachedStraight) Name() string                        { return "straight" }
func (cachedStraight) Heartbeat(ctx context.Context) error { return nil }
func (cachedStraight) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
	return straight(ctx, origin, dest)
}

func TestCachedRoundsKeepTheirQueryPoint(t *testing.T) {
	f := cand(t, 1, 50.49, 30.62)
	// 相距约 13m 的两个查询点
	near := geo.Coordinate{Lat: q1.Lat + 0.0001, Lon: q1.Lon + 0.0001}
	a := New(routing.NewLRU(cachedStraight{}, 64, time.Hour))
	defer a.Stop()

	s1 := waitDone(t, a, a.Start(context.Background(), q1, facility.CandidateSet{f}))
	s2 := waitDone(t, a, a.Start(context.Background(), near, facility.CandidateSet{f}))
	require.True(t, s1.Outcomes[1].OK())
	require.True(t, s2.Outcomes[1].OK())
	assert.Equal(t, geo.Distance(q1, f.Facility.Coordinate()), s1.Outcomes[1].Result.DistanceMeters)
	assert.Equal(t, geo.Distance(near, f.Facility.Coordinate()), s2.Outcomes[1].Result.DistanceMeters)

	// 同一查询点重跑：结果与首次一致
	s3 := waitDone(t, a, a.Start(context.Background(), q1, facility.CandidateSet{f}))
	assert.Equal(t, s1.Outcomes, s3.Outcomes)
}

func TestPartialFailureCompletes(t *testing.T) {
	y, z, w := cand(t, 2, 50.42, 30.61), cand(t, 3, 50.43, 30.60), cand(t, 4, 50.44, 30.59)
	p := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		switch dest {
		case y.Facility.Coordinate():
			return routing.RouteResult{}, &routing.ProviderError{Provider: "stub", Op: "route", StatusCode: 502, Err: errors.New("bad gateway")}
		case w.Facility.Coordinate():
			return routing.RouteResult{}, routing.ErrUnreachable
		}
		return straight(ctx, origin, dest)
	})
	a := New(p)
	defer a.Stop()
	s := waitDone(t, a, a.Start(context.Background(), q1, facility.CandidateSet{y, z, w}))
	assert.Equal(t, StateCompleted, s.State)
	assert.Zero(t, s.Pending())

	o := s.Outcomes[2]
	assert.False(t, o.OK())
	assert.Equal(t, FailureProvider, o.Failure)
	assert.NotEmpty(t, o.Detail)

	o = s.Outcomes[3]
	assert.True(t, o.OK())
	assert.Empty(t, o.Failure)

	o = s.Outcomes[4]
	assert.False(t, o.OK())
	assert.Equal(t, FailureUnreachable, o.Failure)
}

func TestTimeoutIsProviderError(t *testing.T) {
	p := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		<-ctx.Done()
		return routing.RouteResult{}, ctx.Err()
	})
	a := New(p, WithTimeout(20*time.Millisecond))
	defer a.Stop()
	s := waitDone(t, a, a.Start(context.Background(), q1, facility.CandidateSet{cand(t, 1, 50.41, 30.62)}))
	assert.Equal(t, FailureProvider, s.Outcomes[1].Failure)
}

func TestInvalidResultIsFailure(t *testing.T) {
	p := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		return routing.RouteResult{DistanceMeters: math.NaN(), ETAMillis: -1}, nil
	})
	a := New(p)
	defer a.Stop()
	s := waitDone(t, a, a.Start(context.Background(), q1, facility.CandidateSet{cand(t, 1, 50.41, 30.62)}))
	o := s.Outcomes[1]
	assert.False(t, o.OK())
	assert.Equal(t, FailureProvider, o.Failure)
}

func TestEmptyAndDuplicateCandidates(t *testing.T) {
	a := New(providerFunc(straight))
	defer a.Stop()
	s := waitDone(t, a, a.Start(context.Background(), q1, nil))
	assert.Equal(t, StateCompleted, s.State)
	assert.Empty(t, s.Outcomes)

	c := cand(t, 7, 50.41, 30.62)
	s = waitDone(t, a, a.Start(context.Background(), q1, facility.CandidateSet{c, c, c}))
	assert.Equal(t, StateCompleted, s.State)
	assert.Len(t, s.Candidates, 1)
	assert.Len(t, s.Outcomes, 1)
}

func TestIdleSnapshotAndUnknownRound(t *testing.T) {
	a := New(providerFunc(straight))
	defer a.Stop()
	s := a.Snapshot()
	assert.Equal(t, StateIdle, s.State)
	assert.Zero(t, s.Round)

	_, err := a.Wait(context.Background(), 42)
	assert.ErrorIs(t, err, ErrUnknownRound)
}

func TestWaitReportsSupersession(t *testing.T) {
	block := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		<-ctx.Done()
		return routing.RouteResult{}, ctx.Err()
	})
	a := New(block)
	defer a.Stop()
	r1 := a.Start(context.Background(), q1, facility.CandidateSet{cand(t, 1, 50.41, 30.62)})
	go func() {
		time.Sleep(10 * time.Millisecond)
		a.Start(context.Background(), q2, nil)
	}()
	s := waitDone(t, a, r1)
	assert.Equal(t, StateSuperseded, s.State)
	assert.Equal(t, r1, s.Round)
	assert.Empty(t, s.Outcomes)
}

func TestWaitContextReturnsPartial(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a1, a2 := cand(t, 1, 50.41, 30.62), cand(t, 2, 50.42, 30.61)
	p := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		if dest == a2.Facility.Coordinate() {
			select {
			case <-release:
			case <-ctx.Done():
			}
		}
		return straight(ctx, origin, dest)
	})
	a := New(p)
	defer a.Stop()
	id := a.Start(context.Background(), q1, facility.CandidateSet{a1, a2})
	require.Eventually(t, func() bool { return len(a.Snapshot().Outcomes) >= 1 }, 5*time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s, err := a.Wait(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateRunning, s.State)
	assert.Equal(t, []facility.ID{1}, keys(s))
}

func TestObserversSeeOrderedGrowth(t *testing.T) {
	a := New(providerFunc(straight))
	var mu sync.Mutex
	var seen []Snapshot
	unsub := a.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		_ = a.Snapshot() // 回调内再次调用不得死锁
	})
	cs := facility.CandidateSet{cand(t, 1, 50.41, 30.62), cand(t, 2, 50.42, 30.61), cand(t, 3, 50.43, 30.60)}
	id := a.Start(context.Background(), q1, cs)
	waitDone(t, a, id)
	a.Stop()
	unsub()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 4)
	for i, s := range seen {
		assert.Equal(t, id, s.Round)
		assert.Len(t, s.Outcomes, i, "notification %d", i)
	}
	assert.Equal(t, StateRunning, seen[0].State)
	assert.Equal(t, StateCompleted, seen[3].State)
}

func TestObserversSeeSupersessionBeforeNextRound(t *testing.T) {
	block := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		if origin == q1 {
			<-ctx.Done()
			return routing.RouteResult{}, ctx.Err()
		}
		return straight(ctx, origin, dest)
	})
	a := New(block)
	var mu sync.Mutex
	var seen []Snapshot
	a.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})
	a.Start(context.Background(), q1, facility.CandidateSet{cand(t, 1, 50.41, 30.62)})
	r2 := a.Start(context.Background(), q2, facility.CandidateSet{cand(t, 2, 50.42, 30.61)})
	waitDone(t, a, r2)
	a.Stop()

	mu.Lock()
	defer mu.Unlock()
	var states []string
	for _, s := range seen {
		states = append(states, s.State.String())
		if s.Round == 1 {
			assert.NotContains(t, s.Outcomes, facility.ID(2), "第一轮快照混入第二轮候选")
		}
	}
	assert.Equal(t, []string{"running", "superseded", "running", "completed"}, states)
}

func TestMaxInFlight(t *testing.T) {
	var cur, peak atomic.Int32
	p := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
		n := cur.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return straight(ctx, origin, dest)
	})
	a := New(p, WithMaxInFlight(2))
	defer a.Stop()
	var cs facility.CandidateSet
	for i := 1; i <= 8; i++ {
		cs = append(cs, cand(t, facility.ID(i), 50.4+float64(i)*0.01, 30.6))
	}
	s := waitDone(t, a, a.Start(context.Background(), q1, cs))
	assert.Len(t, s.Outcomes, 8)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFinalSnapshotIndependentOfArrivalOrder(t *testing.T) {
	var cs facility.CandidateSet
	for i := 1; i <= 6; i++ {
		cs = append(cs, cand(t, facility.ID(i), 50.4+float64(i)*0.005, 30.6+float64(i)*0.003))
	}
	var first map[facility.ID]Outcome
	for run := 0; run < 5; run++ {
		rng := rand.New(rand.NewSource(int64(run)))
		var mu sync.Mutex
		delays := map[geo.Coordinate]time.Duration{}
		for _, c := range cs {
			delays[c.Facility.Coordinate()] = time.Duration(rng.Intn(5)) * time.Millisecond
		}
		p := providerFunc(func(ctx context.Context, origin, dest geo.Coordinate) (routing.RouteResult, error) {
			mu.Lock()
			d := delays[dest]
			mu.Unlock()
			time.Sleep(d)
			if dest == cs[2].Facility.Coordinate() {
				return routing.RouteResult{}, routing.ErrUnreachable
			}
			return straight(ctx, origin, dest)
		})
		a := New(p)
		s := waitDone(t, a, a.Start(context.Background(), q1, cs))
		a.Stop()
		for id, o := range s.Outcomes {
			o.Detail = ""
			s.Outcomes[id] = o
		}
		if first == nil {
			first = s.Outcomes
			continue
		}
		require.Equal(t, first, s.Outcomes, "run %d", run)
	}
}

func TestStartAfterStop(t *testing.T) {
	a := New(providerFunc(straight))
	a.Stop()
	a.Stop()
	assert.Zero(t, a.Start(context.Background(), q1, nil))
}
