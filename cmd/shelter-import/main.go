package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"shelter-api/internal/config"
	"shelter-api/internal/graceful"
	"shelter-api/internal/importer"
	"shelter-api/internal/logger"
	"shelter-api/internal/migrate"
	"shelter-api/internal/objectstore"
	"shelter-api/internal/refresh"
	"shelter-api/internal/store"
	"shelter-api/internal/utils"
)

// 文档注释：导入避难所清单
// 背景：读取 CSV（SHELTER_CSV 或第一个参数）整批写入 Postgres；MinIO 已配置时同时发布 JSON 快照，
// Kafka 已配置时发布更新事件，运行中的服务据此重新加载。
// 约束：任一行写库失败整批回滚；解析失败的行记录日志后跳过。
func main() {
	cfg, err := config.Load()
	l := logger.Setup()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	path := os.Getenv("SHELTER_CSV")
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if path == "" {
		path = filepath.Join("data", "shelters.csv")
	}
	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		l.Error("csv_open_error", "path", path, "err", err)
		os.Exit(1)
	}
	records, rowErrs, err := importer.ParseCSV(f)
	f.Close()
	if err != nil {
		l.Error("csv_parse_error", "err", err)
		os.Exit(1)
	}
	for _, e := range rowErrs {
		l.Warn("csv_row_skipped", "err", e)
	}
	l.Info("csv_parsed", "path", path, "records", len(records), "skipped", len(rowErrs))

	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(ctx, db); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	st := store.AttachDB(db)
	n, err := st.UpsertShelters(ctx, records)
	if err != nil {
		l.Error("db_upsert_error", "err", err)
		os.Exit(1)
	}
	if err := st.RecordImport(ctx, filepath.Base(path), len(records)+len(rowErrs), n); err != nil {
		l.Warn("import_record_error", "err", err)
	}

	if cfg.MinIO.Enabled() {
		snap, err := objectstore.New(cfg.MinIO)
		if err == nil {
			err = snap.Publish(ctx, records)
		}
		if err != nil {
			l.Error("snapshot_publish_error", "err", err)
		}
	}

	if cfg.Kafka.Enabled() {
		w := refresh.NewKafkaWriter(cfg.Kafka)
		pctx, pcancel := context.WithTimeout(ctx, 10*time.Second)
		err := refresh.PublishUpdated(pctx, w, refresh.UpdatedEvent{Source: "csv", Count: n, At: time.Now().UTC()})
		pcancel()
		if err != nil {
			l.Error("kafka_publish_error", "err", err)
		}
		_ = w.Close()
	}
	l.Info("import_done", "upserted", n)
}
