// 包 store：避难所表的数据访问层；同时作为设施加载的 postgres 数据源
package store

import (
	"context"
	"database/sql"
	"fmt"

	"shelter-api/internal/facility"
	"shelter-api/internal/logger"
)

// Store 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const selectShelters = `SELECT id, district, address, shelter_type, place, building_type,
    owner, ownership, phone, accessibility, hours, latitude, longitude
    FROM shelters ORDER BY id`

type scanner interface {
	Scan(dest ...any) error
}

// scanShelter 读取一行；NULL 坐标保留为 nil
func scanShelter(row scanner) (facility.Facility, error) {
	var f facility.Facility
	var lat, lon sql.NullFloat64
	err := row.Scan(&f.ID, &f.District, &f.Address, &f.ShelterType, &f.Place, &f.BuildingType,
		&f.Owner, &f.Ownership, &f.Phone, &f.Accessible, &f.Hours, &lat, &lon)
	if err != nil {
		return facility.Facility{}, err
	}
	if lat.Valid {
		f.Latitude = &lat.Float64
	}
	if lon.Valid {
		f.Longitude = &lon.Float64
	}
	return f, nil
}

// ListShelters 读取全部记录（含未定位记录），按 ID 排序
func (s *Store) ListShelters(ctx context.Context) ([]facility.Facility, error) {
	rows, err := s.db.QueryContext(ctx, selectShelters)
	if err != nil {
		return nil, fmt.Errorf("list shelters: %w", err)
	}
	defer rows.Close()
	var out []facility.Facility
	for rows.Next() {
		f, err := scanShelter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shelter: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("db_shelters_listed", "count", len(out))
	return out, nil
}

// Name 实现 facility.Source
func (s *Store) Name() string { return "postgres" }

// Load 实现 facility.Source
func (s *Store) Load(ctx context.Context) ([]facility.Facility, error) { return s.ListShelters(ctx) }

const upsertShelter = `INSERT INTO shelters(id, district, address, shelter_type, place, building_type,
    owner, ownership, phone, accessibility, hours, latitude, longitude, updated_at)
    VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13, now())
    ON CONFLICT (id) DO UPDATE SET district=EXCLUDED.district, address=EXCLUDED.address,
    shelter_type=EXCLUDED.shelter_type, place=EXCLUDED.place, building_type=EXCLUDED.building_type,
    owner=EXCLUDED.owner, ownership=EXCLUDED.ownership, phone=EXCLUDED.phone,
    accessibility=EXCLUDED.accessibility, hours=EXCLUDED.hours,
    latitude=EXCLUDED.latitude, longitude=EXCLUDED.longitude, updated_at=now()`

// 文档注释：批量写入（按 ID 覆盖）
// 背景：导入工具一次提交整批记录；任一行失败则整体回滚，避免半新半旧的数据集被加载。
func (s *Store) UpsertShelters(ctx context.Context, fs []facility.Facility) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	stmt, err := tx.PrepareContext(ctx, upsertShelter)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, f := range fs {
		if _, err := stmt.ExecContext(ctx, upsertArgs(f)...); err != nil {
			return 0, fmt.Errorf("upsert shelter %d: %w", f.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logger.L().Info("db_shelters_upserted", "count", len(fs))
	return len(fs), nil
}

func upsertArgs(f facility.Facility) []any {
	return []any{f.ID, f.District, f.Address, f.ShelterType, f.Place, f.BuildingType,
		f.Owner, f.Ownership, f.Phone, f.Accessible, f.Hours, nullFloat(f.Latitude), nullFloat(f.Longitude)}
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// RecordImport 记录一次导入结果
func (s *Store) RecordImport(ctx context.Context, source string, total, upserted int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO shelter_imports(source, rows_total, rows_upserted) VALUES($1,$2,$3)`,
		source, total, upserted)
	return err
}
