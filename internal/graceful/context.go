// 包 graceful：收到终止信号时取消上下文，供服务与后台任务统一退出
package graceful

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"shelter-api/internal/logger"
)

// Context 返回在 SIGINT/SIGTERM 时取消的上下文；cancel 同时解除信号监听
func Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sig:
			logger.L().Info("shutdown_signal", "signal", s.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sig)
	}()
	return ctx, cancel
}
