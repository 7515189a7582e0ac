// 包 migrate：首次运行时创建避难所表与索引
package migrate

import (
	"context"
	"database/sql"

	"shelter-api/internal/logger"
)

// 背景：首次运行自动创建所需表与索引，保障导入与加载可直接进行
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；坐标允许为空（未地理编码的记录）
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS shelters (
            id BIGINT PRIMARY KEY,
            district TEXT NOT NULL DEFAULT '',
            address TEXT NOT NULL DEFAULT '',
            shelter_type TEXT NOT NULL DEFAULT '',
            place TEXT NOT NULL DEFAULT '',
            building_type TEXT NOT NULL DEFAULT '',
            owner TEXT NOT NULL DEFAULT '',
            ownership TEXT NOT NULL DEFAULT '',
            phone TEXT NOT NULL DEFAULT '',
            accessibility BOOLEAN NOT NULL DEFAULT FALSE,
            hours TEXT NOT NULL DEFAULT '',
            latitude DOUBLE PRECISION NULL,
            longitude DOUBLE PRECISION NULL,
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_shelters_place ON shelters(place)`,
		`CREATE TABLE IF NOT EXISTS shelter_imports (
            id SERIAL PRIMARY KEY,
            source TEXT NOT NULL,
            rows_total INT NOT NULL,
            rows_upserted INT NOT NULL,
            finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
