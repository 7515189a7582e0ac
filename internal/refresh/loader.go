// 包 refresh：设施数据的加载、周期刷新与变更事件触发的重新加载
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"shelter-api/internal/facility"
	"shelter-api/internal/logger"
	"shelter-api/internal/metrics"
)

// ErrEmpty 数据源没有任何可定位的记录；保留上一代际
var ErrEmpty = errors.New("no geolocated facilities")

// ReloadFunc 新代际发布后的回调；在加载锁内同步调用
type ReloadFunc func(*facility.Generation)

// 文档注释：设施加载器
// 背景：从数据源整体拉取，经 Geolocate 过滤后替换当前代际；跳过的记录计数并记录日志。
// 约束：加载串行执行；失败或结果为空时不替换当前代际。
type Loader struct {
	src facility.Source
	set *facility.Set

	mu        sync.Mutex
	listeners []ReloadFunc
}

func NewLoader(src facility.Source, set *facility.Set) *Loader {
	return &Loader{src: src, set: set}
}

// OnReload 注册代际发布回调
func (l *Loader) OnReload(fn ReloadFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Reload 加载并发布新代际；trigger 仅用于日志与指标（startup、schedule、kafka、admin）
func (l *Loader) Reload(ctx context.Context, trigger string) (*facility.Generation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	log := logger.L().With("source", l.src.Name(), "trigger", trigger)
	records, err := l.src.Load(ctx)
	if err != nil {
		metrics.ReloadsTotal.WithLabelValues(trigger, "error").Inc()
		log.Error("facility_reload_error", "err", err)
		return nil, fmt.Errorf("load from %s: %w", l.src.Name(), err)
	}
	fs, skipped := facility.GeolocateAll(records)
	if len(fs) == 0 {
		metrics.ReloadsTotal.WithLabelValues(trigger, "empty").Inc()
		log.Warn("facility_reload_empty", "records", len(records), "skipped", skipped)
		return nil, ErrEmpty
	}
	g := l.set.Replace(fs, skipped)
	metrics.ReloadsTotal.WithLabelValues(trigger, "ok").Inc()
	metrics.FacilitiesLoaded.Set(float64(len(fs)))
	metrics.FacilitiesSkipped.Set(float64(skipped))
	log.Info("facility_reload_done", "generation", g.Seq, "loaded", len(fs), "skipped", skipped)
	for _, fn := range l.listeners {
		fn(g)
	}
	return g, nil
}
