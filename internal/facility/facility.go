// 包 facility：设施（避难所）数据模型、有效性判定与最近 K 个选择
package facility

import (
	"encoding/json"
	"fmt"

	"shelter-api/internal/geo"
)

// ID 设施唯一标识；跨刷新代际保持稳定
type ID int64

// Attributes 设施附加信息，核心逻辑不解释其内容
type Attributes struct {
	District     string `json:"district,omitempty"`
	Address      string `json:"address,omitempty"`
	ShelterType  string `json:"shelter_type,omitempty"`
	BuildingType string `json:"building_type,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Ownership    string `json:"ownership,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Accessible   bool   `json:"accessibility"`
	Hours        string `json:"hours,omitempty"`
}

// 文档注释：数据源原始记录
// 背景：字段与导出数据保持一致，坐标可能缺失（未地理编码）；进入核心前须经 Geolocate 转换。
type Facility struct {
	ID        ID       `json:"id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Place     string   `json:"place"`
	Attributes
}

// 文档注释：已定位设施
// 背景：字段不导出，只能经 Geolocate 构造；持有者可假定坐标合法。
type Geolocated struct {
	id       ID
	coord    geo.Coordinate
	category Category
	attrs    Attributes
}

func (g Geolocated) ID() ID                     { return g.id }
func (g Geolocated) Coordinate() geo.Coordinate { return g.coord }
func (g Geolocated) Category() Category         { return g.category }
func (g Geolocated) Attributes() Attributes     { return g.attrs }

func (g Geolocated) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID       ID             `json:"id"`
		Coord    geo.Coordinate `json:"coordinate"`
		Category Category       `json:"category"`
		Place    string         `json:"place,omitempty"`
		Attributes
	}{g.id, g.coord, g.category, g.category.Label(), g.attrs})
}

// 文档注释：有效性判定（单条）
// 约束：任一坐标缺失、非法，或同时为 0 视为不可用，返回包装的 geo.ErrInvalidInput。
func Geolocate(f Facility) (Geolocated, error) {
	if f.Latitude == nil || f.Longitude == nil {
		return Geolocated{}, fmt.Errorf("facility %d: missing coordinate: %w", f.ID, geo.ErrInvalidInput)
	}
	if *f.Latitude == 0 && *f.Longitude == 0 {
		return Geolocated{}, fmt.Errorf("facility %d: null island coordinate: %w", f.ID, geo.ErrInvalidInput)
	}
	c, err := geo.NewCoordinate(*f.Latitude, *f.Longitude)
	if err != nil {
		return Geolocated{}, fmt.Errorf("facility %d: %w", f.ID, err)
	}
	cat, ok := ParseCategory(f.Place)
	if !ok && f.Place != "" {
		cat = CategoryOther
	}
	return Geolocated{id: f.ID, coord: c, category: cat, attrs: f.Attributes}, nil
}

// New 由已知坐标直接构造已定位设施，坐标同样经过校验
func New(id ID, c geo.Coordinate, cat Category, attrs Attributes) (Geolocated, error) {
	lat, lon := c.Lat, c.Lon
	g, err := Geolocate(Facility{ID: id, Latitude: &lat, Longitude: &lon, Attributes: attrs})
	if err != nil {
		return Geolocated{}, err
	}
	g.category = cat
	return g, nil
}

// 文档注释：批量有效性判定
// 背景：设施进入核心时执行一次；重复 ID 仅保留首条。
// 返回：可用设施与被跳过的记录数。
func GeolocateAll(records []Facility) ([]Geolocated, int) {
	out := make([]Geolocated, 0, len(records))
	seen := make(map[ID]struct{}, len(records))
	skipped := 0
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			skipped++
			continue
		}
		g, err := Geolocate(r)
		if err != nil {
			skipped++
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, g)
	}
	return out, skipped
}
