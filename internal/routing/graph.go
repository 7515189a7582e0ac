package routing

import (
	"context"
	"fmt"

	"shelter-api/internal/geo"
	"shelter-api/internal/graph"
)

// 文档注释：本地路网路由（兜底提供方）
// 背景：起终点各自吸附到最近路网节点，节点间走 Dijkstra；总距离 = 起点吸附 + 路网代价 + 终点吸附。
// 约束：吸附距离超过 maxSnap（米，<=0 表示不限）视为不可达；纯计算，不挂起，仅在开始前检查 ctx。
type GraphProvider struct {
	net      *graph.Network
	speedKmh float64
	maxSnap  float64
}

func NewGraphProvider(n *graph.Network, walkingSpeedKmh, maxSnapMeters float64) *GraphProvider {
	if walkingSpeedKmh <= 0 {
		walkingSpeedKmh = DefaultWalkingSpeedKmh
	}
	return &GraphProvider{net: n, speedKmh: walkingSpeedKmh, maxSnap: maxSnapMeters}
}

func (g *GraphProvider) Name() string { return "graph" }

func (g *GraphProvider) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (RouteResult, error) {
	if err := ctx.Err(); err != nil {
		return RouteResult{}, &ProviderError{Provider: g.Name(), Op: "route", Err: err}
	}
	src, ds, err := g.snap(origin)
	if err != nil {
		return RouteResult{}, err
	}
	dst, dd, err := g.snap(dest)
	if err != nil {
		return RouteResult{}, err
	}
	p, ok := graph.ShortestPath(g.net.Graph, src, dst)
	if !ok {
		return RouteResult{}, fmt.Errorf("graph: node %d -> %d: %w", src, dst, ErrUnreachable)
	}
	d := ds + p.Cost + dd
	return RouteResult{DistanceMeters: d, ETAMillis: WalkingETAMillis(d, g.speedKmh)}, nil
}

func (g *GraphProvider) snap(c geo.Coordinate) (int64, float64, error) {
	id, d, err := g.net.Snap(c)
	if err != nil {
		return 0, 0, &ProviderError{Provider: g.Name(), Op: "snap", Err: err}
	}
	if g.maxSnap > 0 && d > g.maxSnap {
		return 0, 0, fmt.Errorf("graph: %v is %.0fm from the network: %w", c, d, ErrUnreachable)
	}
	return id, d, nil
}

// Heartbeat 路网非空即健康
func (g *GraphProvider) Heartbeat(ctx context.Context) error {
	if g.net == nil || g.net.NodeCount() == 0 {
		return &ProviderError{Provider: g.Name(), Op: "heartbeat", Err: graph.ErrEmptyNetwork}
	}
	return nil
}
