package facility

import (
	"cmp"
	"fmt"
	"slices"

	"shelter-api/internal/geo"
)

// Candidate 最近邻候选：设施及其到查询点的直线距离（米）
type Candidate struct {
	Facility       Geolocated `json:"facility"`
	DistanceMeters float64    `json:"distance_m"`
}

// CandidateSet 按距离升序、距离相同按 ID 升序排列
type CandidateSet []Candidate

func (cs CandidateSet) IDs() []ID {
	out := make([]ID, len(cs))
	for i, c := range cs {
		out[i] = c.Facility.ID()
	}
	return out
}

// SameFacilities 判断两组候选是否为同一批设施（ID 与坐标逐一相同），距离不参与比较
func (cs CandidateSet) SameFacilities(o CandidateSet) bool {
	return slices.EqualFunc(cs, o, func(a, b Candidate) bool {
		return a.Facility.ID() == b.Facility.ID() && a.Facility.Coordinate() == b.Facility.Coordinate()
	})
}

// 文档注释：选取距查询点最近的 k 个设施
// 背景：数据规模为城市级（数千条），全量计算距离后排序，保证确定性的平局处理。
// 约束：query 为 nil 表示“尚无位置”，返回空集合；k<1 或 query 非法返回 geo.ErrInvalidInput；
// 同输入重复调用结果一致。
func FindNearest(query *geo.Coordinate, facilities []Geolocated, k int, filter Filter) (CandidateSet, error) {
	if k < 1 {
		return nil, fmt.Errorf("k=%d: %w", k, geo.ErrInvalidInput)
	}
	if query == nil {
		return CandidateSet{}, nil
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	out := make(CandidateSet, 0, len(facilities))
	for _, f := range facilities {
		if !filter.Allows(f.category) {
			continue
		}
		out = append(out, Candidate{Facility: f, DistanceMeters: geo.Distance(*query, f.coord)})
	}
	slices.SortFunc(out, func(a, b Candidate) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return cmp.Compare(a.Facility.id, b.Facility.id)
	})
	if len(out) > k {
		out = out[:k:k]
	}
	return out, nil
}
