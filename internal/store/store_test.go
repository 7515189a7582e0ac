package store

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter-api/internal/facility"
)

type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *facility.ID:
			*p = r[i].(facility.ID)
		case *string:
			*p = r[i].(string)
		case *bool:
			*p = r[i].(bool)
		case *sql.NullFloat64:
			*p = r[i].(sql.NullFloat64)
		default:
			return errors.New("unexpected destination")
		}
	}
	return nil
}

func row(id facility.ID, lat, lon sql.NullFloat64) fakeRow {
	return fakeRow{id, "Дніпровський", "вул. Празька, 1", "ПРУ", "Підвал", "житловий",
		"КП", "комунальна", "", true, "цілодобово", lat, lon}
}

func TestScanShelter(t *testing.T) {
	f, err := scanShelter(row(7, sql.NullFloat64{Float64: 50.4, Valid: true}, sql.NullFloat64{Float64: 30.6, Valid: true}))
	require.NoError(t, err)
	assert.Equal(t, facility.ID(7), f.ID)
	require.NotNil(t, f.Latitude)
	require.NotNil(t, f.Longitude)
	assert.Equal(t, 50.4, *f.Latitude)
	assert.Equal(t, 30.6, *f.Longitude)
	assert.True(t, f.Accessible)

	g, err := facility.Geolocate(f)
	require.NoError(t, err)
	assert.Equal(t, facility.CategoryBasement, g.Category())
}

func TestScanShelterNullCoordinates(t *testing.T) {
	f, err := scanShelter(row(8, sql.NullFloat64{}, sql.NullFloat64{Float64: 30.6, Valid: true}))
	require.NoError(t, err)
	assert.Nil(t, f.Latitude)
	assert.NotNil(t, f.Longitude)
	// 缺纬度的记录不可定位
	_, err = facility.Geolocate(f)
	assert.Error(t, err)
}

func TestUpsertArgs(t *testing.T) {
	lat := 50.45
	args := upsertArgs(facility.Facility{ID: 3, Latitude: &lat})
	require.Len(t, args, 13, "与占位符数量一致")
	assert.Equal(t, sql.NullFloat64{Float64: lat, Valid: true}, args[11])
	assert.Equal(t, sql.NullFloat64{}, args[12], "空经度写入 NULL")
}
