package facility

import (
	"sync/atomic"
	"time"
)

// Generation 一次完整加载得到的设施集合；发布后不再修改
type Generation struct {
	Seq        uint64
	Facilities []Geolocated
	Skipped    int
	LoadedAt   time.Time
}

// 文档注释：设施代际容器
// 背景：通过 atomic.Value 整体替换当前代际，读路径无锁；刷新时不做增量合并。
// 约束：零值可用，未替换前 Current 返回空代际（Seq=0）。
type Set struct {
	v   atomic.Value
	seq atomic.Uint64
}

// Replace 发布新代际并返回之
func (s *Set) Replace(fs []Geolocated, skipped int) *Generation {
	g := &Generation{Seq: s.seq.Add(1), Facilities: fs, Skipped: skipped, LoadedAt: time.Now()}
	s.v.Store(g)
	return g
}

func (s *Set) Current() *Generation {
	x := s.v.Load()
	if x == nil {
		return &Generation{}
	}
	return x.(*Generation)
}

// Lookup 在当前代际中按 ID 查找
func (s *Set) Lookup(id ID) (Geolocated, bool) {
	for _, f := range s.Current().Facilities {
		if f.id == id {
			return f, true
		}
	}
	return Geolocated{}, false
}
