package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"shelter-api/internal/graph"
	"shelter-api/internal/graceful"
	"shelter-api/internal/logger"
)

// 文档注释：由 OSM PBF 构建步行路网文件
// 背景：服务启动时从 GRAPH_PATH 读取路网作为本地路由兜底；构建较慢，离线执行。
// 约束：输入 OSM_PBF（或第一个参数），输出 GRAPH_PATH（或第二个参数，默认 data/graph/walk.json）。
func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	in := os.Getenv("OSM_PBF")
	out := os.Getenv("GRAPH_PATH")
	if len(os.Args) > 1 {
		in = os.Args[1]
	}
	if len(os.Args) > 2 {
		out = os.Args[2]
	}
	if out == "" {
		out = filepath.Join("data", "graph", "walk.json")
	}
	if in == "" {
		l.Error("osm_pbf_missing")
		os.Exit(1)
	}
	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	f, err := os.Open(in)
	if err != nil {
		l.Error("osm_open_error", "path", in, "err", err)
		os.Exit(1)
	}
	defer f.Close()
	start := time.Now()
	n, stats, err := graph.BuildFromPBF(ctx, f)
	if err != nil {
		l.Error("graph_build_error", "err", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		l.Error("graph_dir_error", "err", err)
		os.Exit(1)
	}
	if err := n.SaveFile(out); err != nil {
		l.Error("graph_save_error", "path", out, "err", err)
		os.Exit(1)
	}
	l.Info("graph_build_done", "out", out, "ways", stats.Ways, "nodes", stats.Nodes, "edges", stats.Edges, "elapsed", time.Since(start).String())
}
