// 包 importer：解析避难所清单 CSV（列名与导出 JSON 字段一致），供导入工具写库与发布快照
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"shelter-api/internal/facility"
)

// RowError 单行解析错误
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

var required = []string{"id"}

// 文档注释：解析 CSV
// 背景：坐标列可为空（尚未地理编码），此时记录照常导入、坐标为 NULL，由加载时的有效性判定跳过。
// 约束：列顺序不限、列名大小写不敏感；缺少 id 列直接失败；单行错误收集后继续，返回全部可解析记录。
func ParseCSV(r io.Reader) ([]facility.Facility, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", c)
		}
	}
	var out []facility.Facility
	var rowErrs []error
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Err: err})
			continue
		}
		f, err := parseRow(cols, rec)
		if err != nil {
			rowErrs = append(rowErrs, &RowError{Line: line, Err: err})
			continue
		}
		out = append(out, f)
	}
	return out, rowErrs, nil
}

func parseRow(cols map[string]int, rec []string) (facility.Facility, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	id, err := strconv.ParseInt(get("id"), 10, 64)
	if err != nil {
		return facility.Facility{}, fmt.Errorf("id %q: %w", get("id"), err)
	}
	f := facility.Facility{ID: facility.ID(id), Place: get("place")}
	f.District = get("district")
	f.Address = get("address")
	f.ShelterType = get("shelter_type")
	f.BuildingType = get("building_type")
	f.Owner = get("owner")
	f.Ownership = get("ownership")
	f.Phone = get("phone")
	f.Hours = get("hours")
	f.Accessible = parseBool(get("accessibility"))
	if f.Latitude, err = optFloat(get("latitude")); err != nil {
		return facility.Facility{}, fmt.Errorf("latitude: %w", err)
	}
	if f.Longitude, err = optFloat(get("longitude")); err != nil {
		return facility.Facility{}, fmt.Errorf("longitude: %w", err)
	}
	return f, nil
}

func optFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes", "так", "+":
		return true
	}
	return false
}
