// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"shelter-api/internal/api"
	"shelter-api/internal/config"
	"shelter-api/internal/facility"
	"shelter-api/internal/geoip"
	"shelter-api/internal/graceful"
	"shelter-api/internal/graph"
	"shelter-api/internal/locator"
	"shelter-api/internal/logger"
	"shelter-api/internal/metrics"
	"shelter-api/internal/middleware"
	"shelter-api/internal/migrate"
	"shelter-api/internal/objectstore"
	"shelter-api/internal/refresh"
	"shelter-api/internal/routing"
	"shelter-api/internal/store"
	"shelter-api/internal/utils"
)

func main() {
	cfg, err := config.Load()
	l := logger.Setup()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Debug("config_loaded", "api_base", cfg.APIBase, "facility_source", cfg.FacilitySource, "k", cfg.NearestK)

	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		l.Error("facility_source_error", "source", cfg.FacilitySource, "err", err)
		os.Exit(1)
	}
	defer closeSrc()

	set := &facility.Set{}
	loader := refresh.NewLoader(src, set)
	if _, err := loader.Reload(ctx, "startup"); err != nil {
		// 背景：启动时数据源不可用不阻断服务，等待周期刷新或更新事件
		l.Error("facility_initial_load_failed", "err", err)
	}

	rc := openRedis(ctx, cfg)
	router := buildRouter(ctx, cfg, rc)

	srv := api.NewServer(set, router.provider, api.Options{
		K:            cfg.NearestK,
		RouteTimeout: time.Duration(cfg.RouteTimeoutMs) * time.Millisecond,
		MaxInFlight:  cfg.RouteMaxInFlight,
	}).WithStatuses(router.manager.Statuses)

	sessions := api.NewSessions(time.Duration(cfg.SessionTTLS)*time.Second, func() (*locator.Tracker, error) {
		return locator.NewTracker(ctx, set, router.provider, cfg.NearestK, srv.AggregatorOptions()...)
	})
	sessions.StartJanitor(ctx, time.Minute)
	defer sessions.CloseAll()
	srv.WithSessions(sessions)
	loader.OnReload(func(g *facility.Generation) { sessions.RefreshAll() })

	if cfg.GeoIPDB != "" {
		if loc, err := geoip.Open(cfg.GeoIPDB); err == nil {
			defer loc.Close()
			srv.WithLocator(loc)
			l.Info("geoip_ready", "path", cfg.GeoIPDB)
		} else {
			l.Error("geoip_open_error", "err", err)
		}
	}

	refresh.StartPeriodic(ctx, loader, time.Duration(cfg.RefreshIntervalS)*time.Second)
	if cfg.Kafka.Enabled() {
		go refresh.NewListener(refresh.NewKafkaReader(cfg.Kafka), loader).Run(ctx)
		l.Info("kafka_listener_enabled", "topic", cfg.Kafka.Topic, "group", cfg.Kafka.GroupID)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.APIBase+"/", http.StripPrefix(cfg.APIBase, srv.Routes()))
	mux.Handle(cfg.APIBase+"/metrics", metrics.Handler())
	mux.HandleFunc(cfg.APIBase+"/reload", func(w http.ResponseWriter, r *http.Request) {
		t := r.Header.Get("x-admin-token")
		if r.Method != http.MethodPost || t == "" || t != os.Getenv("ADMIN_TOKEN") {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if _, err := loader.Reload(r.Context(), "admin"); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = s.Shutdown(sctx)
	}()

	if cfg.TLS.Enable {
		if err := utils.EnsureSelfSignedCert(cfg.TLS.CertPath, cfg.TLS.KeyPath, "shelter-api.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", cfg.TLS.CertPath)
		err = s.ListenAndServeTLS(cfg.TLS.CertPath, cfg.TLS.KeyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}

// openSource 按 FACILITY_SOURCE 打开设施数据源
func openSource(ctx context.Context, cfg config.Config) (facility.Source, func(), error) {
	l := logger.L()
	switch cfg.FacilitySource {
	case "s3":
		s, err := objectstore.New(cfg.MinIO)
		return s, func() {}, err
	case "file":
		return facility.FileSource{Path: cfg.FacilityFile}, func() {}, nil
	}
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return nil, nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		l.Error("db_ping_error", "err", err)
	} else {
		l.Info("db_ping_ok")
	}
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store.AttachDB(db), func() { _ = db.Close() }, nil
}

func openRedis(ctx context.Context, cfg config.Config) *redis.Client {
	l := logger.L()
	if !cfg.RedisCache {
		l.Info("redis_disabled")
		return nil
	}
	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
		return nil
	}
	if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
	} else {
		l.Info("redis_ping_ok")
	}
	return rc
}

type routerStack struct {
	manager  *routing.Manager
	provider routing.Provider
}

// 文档注释：组装路由提供方
// 背景：外部服务按配置注册在前，本地路网最后注册作为兜底；选择按健康状态与注册顺序决定，单次调用不做切换。
// 缓存层自外向内为进程内 LRU、Redis（可选）、提供方管理器。
func buildRouter(ctx context.Context, cfg config.Config, rc *redis.Client) routerStack {
	l := logger.L()
	client := &http.Client{Timeout: time.Duration(cfg.RouteTimeoutMs) * time.Millisecond}
	pm := routing.NewManager()
	pm.SetHeartbeatInterval(time.Duration(cfg.HeartbeatSecond) * time.Second)
	if cfg.GraphHopperKey != "" {
		pm.Register(routing.NewGraphHopper(cfg.GraphHopperURL, cfg.GraphHopperKey, client))
	}
	if cfg.OSRMURL != "" {
		pm.Register(routing.NewOSRM(cfg.OSRMURL, cfg.WalkingSpeedKmh, client))
	}
	if cfg.GraphPath != "" {
		if n, err := graph.LoadFile(cfg.GraphPath); err == nil {
			pm.Register(routing.NewGraphProvider(n, cfg.WalkingSpeedKmh, cfg.GraphMaxSnapM))
			l.Info("graph_loaded", "nodes", n.NodeCount(), "edges", n.EdgeCount())
		} else {
			l.Error("graph_load_error", "path", cfg.GraphPath, "err", err)
		}
	}
	pm.CheckNow(ctx)
	pm.Start(ctx)

	var p routing.Provider = pm
	ttl := time.Duration(cfg.RouteCacheTTLS) * time.Second
	if rc != nil {
		p = routing.NewRedisCache(p, rc, ttl)
	}
	if cfg.RouteCacheSize > 0 {
		p = routing.NewLRU(p, cfg.RouteCacheSize, ttl)
	}
	return routerStack{manager: pm, provider: p}
}
