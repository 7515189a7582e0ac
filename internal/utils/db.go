// 包 utils：Postgres、Redis 与 TLS 证书的连接与准备工具，统一环境变量读取
package utils

import (
	"database/sql"
	"net/url"
	"os"
	"strconv"

	_ "github.com/lib/pq"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// BuildPostgresDSNFromEnv：由 PG_HOST/PG_PORT/PG_USER/PG_PASSWORD/PG_DB/PG_SSLMODE 组装 DSN
// 约束：口令做 URL 转义；未配置口令时省略
func BuildPostgresDSNFromEnv() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   getenv("PG_HOST", "localhost") + ":" + getenv("PG_PORT", "5432"),
		Path:   "/" + getenv("PG_DB", "shelters"),
	}
	user := getenv("PG_USER", "postgres")
	if pass := os.Getenv("PG_PASSWORD"); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	u.RawQuery = "sslmode=" + getenv("PG_SSLMODE", "disable")
	return u.String()
}

// OpenPostgres：打开连接池；maxOpen/maxIdle <=0 时使用默认 50/25
func OpenPostgres(dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = 50
	}
	if maxIdle <= 0 {
		maxIdle = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	return db, nil
}

// OpenPostgresFromEnv：按环境变量打开连接池，支持 PG_MAX_OPEN_CONNS / PG_MAX_IDLE_CONNS
func OpenPostgresFromEnv() (*sql.DB, error) {
	maxOpen, _ := strconv.Atoi(os.Getenv("PG_MAX_OPEN_CONNS"))
	maxIdle, _ := strconv.Atoi(os.Getenv("PG_MAX_IDLE_CONNS"))
	return OpenPostgres(BuildPostgresDSNFromEnv(), maxOpen, maxIdle)
}
