package facility

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// 文档注释：设施类别（原始数据 place 字段）
// 背景：核心只用类别做过滤；颜色/图标等展示映射由前端负责，不在此处定义。
type Category uint8

const (
	CategoryUnknown Category = iota
	CategoryMetro
	CategoryUnderpass
	CategoryShelter
	CategoryBasement
	CategorySemiBasement
	CategoryGroundFloor
	CategoryParking
	CategoryOther
)

var categoryLabels = map[Category]string{
	CategoryMetro:        "Станція метрополітену",
	CategoryUnderpass:    "Підземний перехід",
	CategoryShelter:      "Укриття",
	CategoryBasement:     "Підвал",
	CategorySemiBasement: "Цокольний поверх",
	CategoryGroundFloor:  "Перший поверх",
	CategoryParking:      "Підземний паркінг",
	CategoryOther:        "Інше",
}

var categorySlugs = map[Category]string{
	CategoryUnknown:      "unknown",
	CategoryMetro:        "metro",
	CategoryUnderpass:    "underpass",
	CategoryShelter:      "shelter",
	CategoryBasement:     "basement",
	CategorySemiBasement: "semi_basement",
	CategoryGroundFloor:  "ground_floor",
	CategoryParking:      "parking",
	CategoryOther:        "other",
}

// Categories 返回全部已知类别（不含 Unknown），按枚举顺序
func Categories() []Category {
	out := make([]Category, 0, len(categoryLabels))
	for c := CategoryMetro; c <= CategoryOther; c++ {
		out = append(out, c)
	}
	return out
}

// Label 原始数据中的类别文本；Unknown 返回空串
func (c Category) Label() string { return categoryLabels[c] }

func (c Category) String() string {
	if s, ok := categorySlugs[c]; ok {
		return s
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// 文档注释：解析类别
// 背景：同时接受原始文本标签（数据导入）与英文短名（查询参数），大小写与首尾空白不敏感。
// 约束：无法识别时返回 CategoryUnknown 与 false。
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryUnknown, false
	}
	for c, l := range categoryLabels {
		if strings.EqualFold(l, s) {
			return c, true
		}
	}
	for c, slug := range categorySlugs {
		if c != CategoryUnknown && strings.EqualFold(slug, s) {
			return c, true
		}
	}
	return CategoryUnknown, false
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, _ := ParseCategory(s)
	*c = v
	return nil
}

// 文档注释：类别过滤器
// 背景：替代全局“已选类别”状态，作为显式参数传入最近邻选择；空集合表示不过滤。
type Filter struct {
	set map[Category]struct{}
}

func NewFilter(cs ...Category) Filter {
	if len(cs) == 0 {
		return Filter{}
	}
	f := Filter{set: make(map[Category]struct{}, len(cs))}
	for _, c := range cs {
		f.set[c] = struct{}{}
	}
	return f
}

// ParseFilter 解析逗号分隔或多值的类别参数；任一值无法识别即返回错误
func ParseFilter(values []string) (Filter, error) {
	var cs []Category
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			c, ok := ParseCategory(part)
			if !ok {
				return Filter{}, fmt.Errorf("unknown category %q", part)
			}
			cs = append(cs, c)
		}
	}
	return NewFilter(cs...), nil
}

func (f Filter) Allows(c Category) bool {
	if len(f.set) == 0 {
		return true
	}
	_, ok := f.set[c]
	return ok
}

func (f Filter) Categories() []Category {
	out := make([]Category, 0, len(f.set))
	for c := range f.set {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

func (f Filter) Equal(o Filter) bool {
	return slices.Equal(f.Categories(), o.Categories())
}
