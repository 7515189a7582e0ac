package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr)
	assert.Equal(t, 5, c.NearestK)
	assert.Equal(t, "postgres", c.FacilitySource)
	// 可选集成默认关闭
	assert.False(t, c.MinIO.Enabled())
	assert.False(t, c.Kafka.Enabled())
}

func TestFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
nearest_k: 3
walking_speed_kmh: 5.5
facility_source: file
facility_file: /srv/shelters.json
kafka:
  brokers: [k1:9092]
  topic: facilities
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("NEAREST_K", "7")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7, c.NearestK, "环境变量覆盖文件")
	assert.Equal(t, 5.5, c.WalkingSpeedKmh)
	assert.Equal(t, "/srv/shelters.json", c.FacilityFile)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "facilities", c.Kafka.Topic)
	assert.Equal(t, "shelter-api", c.Kafka.GroupID, "未覆盖的默认值保留")
}

func TestBadNumberKeepsDefault(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ROUTE_TIMEOUT_MS", "soon")
	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 5000, c.RouteTimeoutMs)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"k zero", func(c *Config) { c.NearestK = 0 }},
		{"speed", func(c *Config) { c.WalkingSpeedKmh = 0 }},
		{"source", func(c *Config) { c.FacilitySource = "ftp" }},
		{"s3 without creds", func(c *Config) { c.FacilitySource = "s3" }},
		{"base", func(c *Config) { c.APIBase = "api" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Defaults()
			tc.mut(&c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Defaults().Validate())
}

func TestMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := FromEnv()
	assert.Error(t, err)
}
