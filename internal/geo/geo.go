// 包 geo：坐标值类型与球面距离（Haversine），为最近邻选择、图路由吸附与缓存键提供统一几何基础
package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters 地球平均半径（米）
const EarthRadiusMeters = 6371000.0

// ErrInvalidInput 坐标或参数非法（NaN、越界、k<1 等）
var ErrInvalidInput = errors.New("invalid input")

// 文档注释：WGS84 坐标值类型
// 约束：不可变值语义；合法范围纬度 [-90,90]、经度 [-180,180]，由 Validate 判定。
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// NewCoordinate 构造并校验坐标
func NewCoordinate(lat, lon float64) (Coordinate, error) {
	c := Coordinate{Lat: lat, Lon: lon}
	if err := c.Validate(); err != nil {
		return Coordinate{}, err
	}
	return c, nil
}

// 文档注释：校验坐标合法性
// 约束：NaN/Inf/越界返回包装后的 ErrInvalidInput；不做任何修正或截断。
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("coordinate %v: not a number: %w", c, ErrInvalidInput)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range: %w", c.Lat, ErrInvalidInput)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %v out of range: %w", c.Lon, ErrInvalidInput)
	}
	return nil
}

func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
}

// 文档注释：球面距离（Haversine），返回米
// 背景：对称且 Distance(a,a)==0；输入含 NaN 时结果为 NaN，校验责任在调用方。
func Distance(a, b Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// 文档注释：解析 "lat, lon" 文本坐标
// 背景：搜索框与查询参数常见输入格式；分隔符为逗号，两侧空白忽略。
func ParseLatLon(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("parse %q: want \"lat,lon\": %w", s, ErrInvalidInput)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse latitude %q: %w", parts[0], ErrInvalidInput)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("parse longitude %q: %w", parts[1], ErrInvalidInput)
	}
	return NewCoordinate(lat, lon)
}
