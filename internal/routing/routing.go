// 包 routing：步行路线代价提供方（外部 HTTP 服务与本地路网兜底）、健康选择与结果缓存
package routing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"shelter-api/internal/geo"
)

// RouteResult 单条路线代价：距离（米）与预计耗时（毫秒），均不小于 0
type RouteResult struct {
	DistanceMeters float64 `json:"distance_m"`
	ETAMillis      float64 `json:"eta_ms"`
}

// 文档注释：路线代价提供方（统一契约）
// 背景：外部步行导航服务与本地图路由实现同一接口，聚合层不感知具体来源。
// 约束：起终点无法连通返回 ErrUnreachable；其余失败（网络、超时、配额、响应格式）返回 *ProviderError；
// 不做自动重试。Heartbeat 用于健康检测。
type Provider interface {
	Name() string
	ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (RouteResult, error)
	Heartbeat(ctx context.Context) error
}

var (
	// ErrUnreachable 起终点之间不存在可步行路线（正常结果）
	ErrUnreachable = errors.New("unreachable")
	// ErrNoProvider 没有健康的提供方
	ErrNoProvider = errors.New("no healthy route provider")
	// ErrBadResult 提供方返回了非法数值（NaN、负数）
	ErrBadResult = errors.New("invalid route result")
)

// 文档注释：提供方瞬时失败
// 背景：携带提供方名称、操作与 HTTP 状态码，便于日志与指标按来源归类；支持 errors.Is/As。
type ProviderError struct {
	Provider   string
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Validate 拒绝 NaN/Inf/负数结果，不做修正
func (r RouteResult) Validate() error {
	for _, v := range []float64{r.DistanceMeters, r.ETAMillis} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%+v: %w", r, ErrBadResult)
		}
	}
	return nil
}

// 文档注释：失败归类
// 返回："unreachable" 或 "provider_error"；用于指标标签与聚合结果。
func Classify(err error) string {
	if errors.Is(err, ErrUnreachable) {
		return "unreachable"
	}
	return "provider_error"
}

// WalkingETAMillis 按步行速度（km/h）估算耗时；速度非正时按 4.8km/h
func WalkingETAMillis(distanceMeters, speedKmh float64) float64 {
	if speedKmh <= 0 {
		speedKmh = DefaultWalkingSpeedKmh
	}
	return distanceMeters / (speedKmh * 1000 / 3600) * 1000
}

// DefaultWalkingSpeedKmh 默认步行速度
const DefaultWalkingSpeedKmh = 4.8
