package importer

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter-api/internal/facility"
)

const sample = "\ufeffID,District,Address,Shelter_Type,Place,Building_Type,Owner,Ownership,Phone,Accessibility,Latitude,Longitude,Hours\n" +
	"1,Дніпровський,\"вул. Райдужна, 3\",ПРУ,Підвал,житловий,ОСББ,приватна,,так,50.4501,30.6234,цілодобово\n" +
	"2,Печерський,пл. Арсенальна,Сховище,Станція метрополітену,,КП Київський метрополітен,комунальна,044,false,\"50,4445\",30.5452,\n" +
	"3,Оболонський,вул. Героїв,ПРУ,Підвал,,,,,,,,\n" +
	"x,Оболонський,вул. Героїв,ПРУ,Підвал,,,,,,,,\n" +
	"5,Оболонський,вул. Героїв,ПРУ,Підвал,,,,,,north,30.5,\n"

func TestParseCSV(t *testing.T) {
	fs, rowErrs, err := ParseCSV(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, fs, 3)
	require.Len(t, rowErrs, 2)

	var re *RowError
	require.True(t, errors.As(rowErrs[0], &re), "%v", rowErrs[0])
	assert.Equal(t, 5, re.Line)
	// 行错误包装原始解析错误
	var numErr *strconv.NumError
	assert.True(t, errors.As(rowErrs[1], &numErr), "%v", rowErrs[1])

	first := fs[0]
	assert.Equal(t, "вул. Райдужна, 3", first.Address)
	assert.True(t, first.Accessible)
	require.NotNil(t, first.Latitude)
	assert.Equal(t, 50.4501, *first.Latitude)

	// 小数逗号
	require.NotNil(t, fs[1].Latitude)
	assert.Equal(t, 50.4445, *fs[1].Latitude)
	assert.False(t, fs[1].Accessible)

	assert.Nil(t, fs[2].Latitude)
	assert.Nil(t, fs[2].Longitude)

	gs, skipped := facility.GeolocateAll(fs)
	require.Len(t, gs, 2)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, facility.CategoryMetro, gs[1].Category())
}

func TestParseCSVMissingID(t *testing.T) {
	_, _, err := ParseCSV(strings.NewReader("district,address\nA,B\n"))
	assert.Error(t, err)
	_, _, err = ParseCSV(strings.NewReader(""))
	assert.Error(t, err, "空输入")
}
