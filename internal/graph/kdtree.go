package graph

import (
	"math"

	"shelter-api/internal/geo"
)

// 文档注释：KD-Tree 最近邻（二维经纬）
// 背景：把任意坐标吸附到最近的路网节点；按经度/纬度交替分割，中位数建树。
// 约束：仅支持最近一个点查询；经度方向剪枝使用查询纬度下的近似距离，适用于城市尺度。
type kdNode struct {
	p  point
	ax int // 0:lon,1:lat
	l  *kdNode
	r  *kdNode
}

type point struct {
	id int64
	c  geo.Coordinate
}

func buildKD(ps []point, depth int) *kdNode {
	if len(ps) == 0 {
		return nil
	}
	ax := depth % 2
	mid := len(ps) / 2
	selectNth(ps, mid, ax)
	n := &kdNode{p: ps[mid], ax: ax}
	n.l = buildKD(ps[:mid], depth+1)
	n.r = buildKD(ps[mid+1:], depth+1)
	return n
}

// 原地 nth 元素选择
func selectNth(a []point, n int, ax int) {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi, (lo+hi)/2, ax)
		if p == n {
			return
		}
		if n < p {
			hi = p - 1
		} else {
			lo = p + 1
		}
	}
}

func partition(a []point, lo, hi, pivot, ax int) int {
	pv := a[pivot]
	a[pivot], a[hi] = a[hi], a[pivot]
	i := lo
	for j := lo; j < hi; j++ {
		if axisValue(a[j].c, ax) < axisValue(pv.c, ax) {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

func axisValue(c geo.Coordinate, ax int) float64 {
	if ax == 0 {
		return c.Lon
	}
	return c.Lat
}

// 最近邻查询，返回节点与距离（米）
func nearest(root *kdNode, q geo.Coordinate) (point, float64) {
	best := point{}
	bestD := math.MaxFloat64
	var dfs func(n *kdNode)
	dfs = func(n *kdNode) {
		if n == nil {
			return
		}
		d := geo.Distance(q, n.p.c)
		if d < bestD || (d == bestD && n.p.id < best.id) {
			bestD = d
			best = n.p
		}
		key, split := axisValue(q, n.ax), axisValue(n.p.c, n.ax)
		first, second := n.l, n.r
		if key >= split {
			first, second = n.r, n.l
		}
		dfs(first)
		if planeDistance(q, split, n.ax) <= bestD {
			dfs(second)
		}
	}
	dfs(root)
	return best, bestD
}

// 查询点到分割线的距离下界（米）
func planeDistance(q geo.Coordinate, split float64, ax int) float64 {
	if ax == 1 {
		return math.Abs(q.Lat-split) * math.Pi / 180 * geo.EarthRadiusMeters
	}
	return 0.99 * geo.Distance(q, geo.Coordinate{Lat: q.Lat, Lon: split})
}
