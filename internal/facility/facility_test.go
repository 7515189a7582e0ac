package facility

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter-api/internal/geo"
)

var kyivCenter = geo.Coordinate{Lat: 50.4001, Lon: 30.6234}

func fp(v float64) *float64 { return &v }

func mustNew(t *testing.T, id ID, lat, lon float64, cat Category) Geolocated {
	t.Helper()
	g, err := New(id, geo.Coordinate{Lat: lat, Lon: lon}, cat, Attributes{})
	require.NoError(t, err, "New(%d)", id)
	return g
}

func TestFindNearestKyiv(t *testing.T) {
	fs := []Geolocated{
		mustNew(t, 1, 50.4500, 30.5000, CategoryShelter),
		mustNew(t, 2, 50.4010, 30.6240, CategoryShelter),
	}
	got, err := FindNearest(&kyivCenter, fs, 1, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []ID{2}, got.IDs())
}

func TestFindNearestOrderingAndTies(t *testing.T) {
	q := geo.Coordinate{Lat: 50, Lon: 30}
	fs := []Geolocated{
		mustNew(t, 9, 50.01, 30, CategoryMetro),
		mustNew(t, 3, 50.01, 30, CategoryMetro),
		mustNew(t, 5, 50.001, 30, CategoryBasement),
		mustNew(t, 7, 50.1, 30, CategoryParking),
	}
	got, err := FindNearest(&q, fs, 10, Filter{})
	require.NoError(t, err)
	// 距离相同按 ID 升序
	assert.Equal(t, []ID{5, 3, 9, 7}, got.IDs())
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].DistanceMeters, got[i-1].DistanceMeters, "index %d", i)
	}
	again, _ := FindNearest(&q, fs, 10, Filter{})
	assert.Equal(t, got, again)
	top2, _ := FindNearest(&q, fs, 2, Filter{})
	assert.Equal(t, []ID{5, 3}, top2.IDs())
}

func TestFindNearestFilter(t *testing.T) {
	q := geo.Coordinate{Lat: 50, Lon: 30}
	fs := []Geolocated{
		mustNew(t, 1, 50.001, 30, CategoryBasement),
		mustNew(t, 2, 50.002, 30, CategoryMetro),
		mustNew(t, 3, 50.003, 30, CategoryParking),
	}
	got, err := FindNearest(&q, fs, 5, NewFilter(CategoryMetro, CategoryParking))
	require.NoError(t, err)
	assert.Equal(t, []ID{2, 3}, got.IDs())
}

func TestFindNearestEdgeCases(t *testing.T) {
	fs := []Geolocated{mustNew(t, 1, 50.001, 30, CategoryShelter)}

	// 尚无位置
	got, err := FindNearest(nil, fs, 3, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = FindNearest(&kyivCenter, fs, 0, Filter{})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)

	bad := geo.Coordinate{Lat: math.NaN(), Lon: 0}
	_, err = FindNearest(&bad, fs, 1, Filter{})
	assert.ErrorIs(t, err, geo.ErrInvalidInput)

	got, err = FindNearest(&kyivCenter, fs, 5, Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = FindNearest(&kyivCenter, nil, 5, Filter{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGeolocateAll(t *testing.T) {
	records := []Facility{
		{ID: 1, Latitude: fp(50.45), Longitude: fp(30.52), Place: "Укриття"},
		{ID: 2, Latitude: nil, Longitude: fp(30.5)},
		{ID: 3, Latitude: fp(0), Longitude: fp(0)},
		{ID: 4, Latitude: fp(123), Longitude: fp(30)},
		{ID: 1, Latitude: fp(50.46), Longitude: fp(30.53)},
		{ID: 5, Latitude: fp(50.44), Longitude: fp(30.51), Place: "something new"},
		{ID: 6, Latitude: fp(50.43), Longitude: fp(30.50)},
	}
	got, skipped := GeolocateAll(records)
	assert.Equal(t, 4, skipped)
	require.Len(t, got, 3)

	assert.Equal(t, ID(1), got[0].ID())
	assert.Equal(t, CategoryShelter, got[0].Category())
	assert.Equal(t, 50.45, got[0].Coordinate().Lat, "重复 ID 保留首条")
	assert.Equal(t, CategoryOther, got[1].Category())
	assert.Equal(t, CategoryUnknown, got[2].Category())
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"Станція метрополітену": CategoryMetro,
		" підвал ":              CategoryBasement,
		"parking":               CategoryParking,
		"SEMI_BASEMENT":         CategorySemiBasement,
	}
	for in, want := range cases {
		got, ok := ParseCategory(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseCategory("unknown")
	assert.False(t, ok)

	_, err := ParseFilter([]string{"metro,bogus"})
	assert.Error(t, err)

	f, err := ParseFilter([]string{"metro, parking", "metro"})
	require.NoError(t, err)
	assert.True(t, f.Equal(NewFilter(CategoryParking, CategoryMetro)), "filter = %v", f.Categories())
}

func TestSetReplace(t *testing.T) {
	var s Set
	g := s.Current()
	assert.Zero(t, g.Seq)
	assert.Empty(t, g.Facilities)

	g1 := s.Replace([]Geolocated{mustNew(t, 1, 50, 30, CategoryShelter)}, 0)
	g2 := s.Replace([]Geolocated{mustNew(t, 2, 50, 30, CategoryShelter)}, 1)
	assert.Equal(t, uint64(1), g1.Seq)
	assert.Equal(t, uint64(2), g2.Seq)
	assert.Same(t, g2, s.Current())

	_, ok := s.Lookup(1)
	assert.False(t, ok, "旧代际不可见")
	f, ok := s.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, ID(2), f.ID())
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shelters.json")
	raw := `[{"id":10,"latitude":50.45,"longitude":30.52,"place":"Підвал","address":"вул. Хрещатик, 1","accessibility":true}]`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	fs, err := FileSource{Path: path}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, fs, 1)
	assert.Equal(t, ID(10), fs[0].ID)
	assert.True(t, fs[0].Accessible)
	assert.Equal(t, "вул. Хрещатик, 1", fs[0].Address)

	g, err := Geolocate(fs[0])
	require.NoError(t, err)
	b, err := json.Marshal(g)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "basement", out["category"])
	assert.Equal(t, "Підвал", out["place"])
}
