package refresh

import (
	"context"
	"time"

	"shelter-api/internal/logger"
)

// nextAligned：计算下一个按 every 对齐的时间点（严格晚于 now）
func nextAligned(now time.Time, every time.Duration) time.Time {
	t := now.Truncate(every).Add(every)
	if !t.After(now) {
		t = t.Add(every)
	}
	return t
}

// 文档注释：周期刷新
// 背景：按固定间隔（对齐到整点倍数）重新加载设施；错误由日志记录，任务继续调度。
// 约束：every <= 0 时不启动；ctx 结束后退出，返回的通道随之关闭。
func StartPeriodic(ctx context.Context, ld *Loader, every time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if every <= 0 {
		close(done)
		return done
	}
	l := logger.L()
	go func() {
		defer close(done)
		next := nextAligned(time.Now(), every)
		for {
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			l.Debug("refresh_tick", "next", next)
			_, _ = ld.Reload(ctx, "schedule")
			next = nextAligned(time.Now(), every)
		}
	}()
	return done
}
