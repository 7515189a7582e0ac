// 包 config：集中读取服务配置；默认值 < YAML 文件（CONFIG_FILE）< 环境变量
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shelter-api/internal/logger"
)

type MinIO struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Bucket    string `yaml:"bucket"`
	Object    string `yaml:"object"`
}

// Enabled 端点与凭据齐全
func (m MinIO) Enabled() bool {
	return m.Endpoint != "" && m.AccessKey != "" && m.SecretKey != ""
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 && k.Topic != "" }

type TLS struct {
	Enable   bool   `yaml:"enable"`
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`
}

// 文档注释：服务配置
// 背景：数据库、Redis、限流、日志等连接级参数沿用各自模块的环境变量读取（PG_*、REDIS_*、RATE_LIMIT_*、LOG_*），
// 此处只收拢业务参数。
type Config struct {
	Addr    string `yaml:"addr"`
	APIBase string `yaml:"api_base"`

	NearestK         int     `yaml:"nearest_k"`
	RouteTimeoutMs   int     `yaml:"route_timeout_ms"`
	RouteMaxInFlight int     `yaml:"route_max_in_flight"`
	WalkingSpeedKmh  float64 `yaml:"walking_speed_kmh"`

	GraphHopperKey string  `yaml:"graphhopper_key"`
	GraphHopperURL string  `yaml:"graphhopper_url"`
	OSRMURL        string  `yaml:"osrm_url"`
	GraphPath      string  `yaml:"graph_path"`
	GraphMaxSnapM  float64 `yaml:"graph_max_snap_m"`

	RouteCacheSize  int  `yaml:"route_cache_size"`
	RouteCacheTTLS  int  `yaml:"route_cache_ttl_s"`
	RedisCache      bool `yaml:"redis_cache"`
	HeartbeatSecond int  `yaml:"heartbeat_s"`

	FacilitySource   string `yaml:"facility_source"`
	FacilityFile     string `yaml:"facility_file"`
	RefreshIntervalS int    `yaml:"refresh_interval_s"`

	MinIO MinIO `yaml:"minio"`
	Kafka Kafka `yaml:"kafka"`

	GeoIPDB     string `yaml:"geoip_db"`
	SessionTTLS int    `yaml:"session_ttl_s"`

	TLS TLS `yaml:"tls"`
}

// Defaults 默认配置
func Defaults() Config {
	return Config{
		Addr:             ":8080",
		APIBase:          "/api",
		NearestK:         5,
		RouteTimeoutMs:   5000,
		RouteMaxInFlight: 8,
		WalkingSpeedKmh:  4.8,
		GraphMaxSnapM:    500,
		RouteCacheSize:   4096,
		RouteCacheTTLS:   3600,
		HeartbeatSecond:  10,
		FacilitySource:   "postgres",
		FacilityFile:     filepath.Join("data", "shelters.json"),
		RefreshIntervalS: 3600,
		MinIO:            MinIO{Bucket: "shelters", Object: "snapshots/shelters.json"},
		Kafka:            Kafka{Topic: "shelters.updated", GroupID: "shelter-api"},
		SessionTTLS:      900,
		TLS: TLS{
			CertPath: filepath.Join("data", "certs", "server.crt"),
			KeyPath:  filepath.Join("data", "certs", "server.key"),
		},
	}
}

// Load 读取 .env 与 data/env/.env 后解析配置
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	return FromEnv()
}

// 文档注释：由环境变量（及可选 YAML 文件）构建配置
// 约束：数值解析失败时保留原值并记录日志，不中断启动；最终结果经 Validate 校验。
func FromEnv() (Config, error) {
	c := Defaults()
	if f := os.Getenv("CONFIG_FILE"); f != "" {
		if err := c.overlayFile(f); err != nil {
			return c, err
		}
	}
	c.overlayEnv()
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	logger.L().Debug("config_file_loaded", "path", path)
	return nil
}

func (c *Config) overlayEnv() {
	str("ADDR", &c.Addr)
	str("API_BASE", &c.APIBase)
	num("NEAREST_K", &c.NearestK)
	num("ROUTE_TIMEOUT_MS", &c.RouteTimeoutMs)
	num("ROUTE_MAX_IN_FLIGHT", &c.RouteMaxInFlight)
	float("WALKING_SPEED_KMH", &c.WalkingSpeedKmh)

	str("GRAPHHOPPER_KEY", &c.GraphHopperKey)
	str("GRAPHHOPPER_URL", &c.GraphHopperURL)
	str("OSRM_URL", &c.OSRMURL)
	str("GRAPH_PATH", &c.GraphPath)
	float("GRAPH_MAX_SNAP_M", &c.GraphMaxSnapM)

	num("ROUTE_CACHE_SIZE", &c.RouteCacheSize)
	num("ROUTE_CACHE_TTL_S", &c.RouteCacheTTLS)
	boolean("ROUTE_CACHE_REDIS", &c.RedisCache)
	num("PROVIDER_HEARTBEAT_S", &c.HeartbeatSecond)

	str("FACILITY_SOURCE", &c.FacilitySource)
	str("FACILITY_FILE", &c.FacilityFile)
	num("REFRESH_INTERVAL_S", &c.RefreshIntervalS)

	str("MINIO_ENDPOINT", &c.MinIO.Endpoint)
	str("MINIO_ACCESS_KEY", &c.MinIO.AccessKey)
	str("MINIO_SECRET_KEY", &c.MinIO.SecretKey)
	boolean("MINIO_USE_SSL", &c.MinIO.UseSSL)
	str("MINIO_BUCKET", &c.MinIO.Bucket)
	str("MINIO_OBJECT", &c.MinIO.Object)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("KAFKA_GROUP_ID", &c.Kafka.GroupID)

	str("GEOIP_DB", &c.GeoIPDB)
	num("SESSION_TTL_S", &c.SessionTTLS)

	boolean("TLS_ENABLE", &c.TLS.Enable)
	str("TLS_CERT_PATH", &c.TLS.CertPath)
	str("TLS_KEY_PATH", &c.TLS.KeyPath)
}

// Validate 校验取值范围
func (c Config) Validate() error {
	if c.NearestK < 1 {
		return fmt.Errorf("NEAREST_K must be >= 1, got %d", c.NearestK)
	}
	if c.WalkingSpeedKmh <= 0 {
		return fmt.Errorf("WALKING_SPEED_KMH must be > 0, got %v", c.WalkingSpeedKmh)
	}
	switch c.FacilitySource {
	case "postgres", "file":
	case "s3":
		if !c.MinIO.Enabled() {
			return fmt.Errorf("FACILITY_SOURCE=s3 requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
		}
	default:
		return fmt.Errorf("unknown FACILITY_SOURCE %q", c.FacilitySource)
	}
	if !strings.HasPrefix(c.APIBase, "/") {
		return fmt.Errorf("API_BASE must start with /, got %q", c.APIBase)
	}
	return nil
}

func str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func num(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logger.L().Warn("config_parse_error", "key", key, "value", v)
		return
	}
	*dst = n
}

func float(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.L().Warn("config_parse_error", "key", key, "value", v)
		return
	}
	*dst = f
}

func boolean(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
