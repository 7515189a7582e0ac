// 包 graph：非负权图最短路（Dijkstra）与带地理坐标的步行路网，作为无外部路由服务时的本地兜底
package graph

import (
	"cmp"
	"container/heap"
	"math"
	"slices"
)

// 文档注释：邻接表表示的有向带权图
// 约束：边权必须非负，负权行为未定义（不做检查）；仅作为邻居出现的节点视为无出边的合法节点。
type Graph[N cmp.Ordered] map[N]map[N]float64

// AddEdge 添加或覆盖一条有向边
func (g Graph[N]) AddEdge(from, to N, w float64) {
	adj, ok := g[from]
	if !ok {
		adj = make(map[N]float64)
		g[from] = adj
	}
	adj[to] = w
	if _, ok := g[to]; !ok {
		g[to] = make(map[N]float64)
	}
}

// HasNode 节点是否出现在图中（作为键或邻居）
func (g Graph[N]) HasNode(n N) bool {
	if _, ok := g[n]; ok {
		return true
	}
	for _, adj := range g {
		if _, ok := adj[n]; ok {
			return true
		}
	}
	return false
}

// Path 最短路结果：总代价与起点到终点的节点序列
type Path[N cmp.Ordered] struct {
	Cost  float64 `json:"cost"`
	Nodes []N     `json:"nodes"`
}

type item[N cmp.Ordered] struct {
	node N
	dist float64
}

// 最小堆：距离优先，距离相同取较小节点，保证结果确定
type minHeap[N cmp.Ordered] []item[N]

func (h minHeap[N]) Len() int { return len(h) }
func (h minHeap[N]) Less(i, j int) bool {
	if h[i].dist != h[j].dist {
		return h[i].dist < h[j].dist
	}
	return h[i].node < h[j].node
}
func (h minHeap[N]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *minHeap[N]) Push(x any)   { *h = append(*h, x.(item[N])) }
func (h *minHeap[N]) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// 文档注释：单源最短路（Dijkstra，二叉堆 + 惰性删除）
// 背景：终点出堆即停止；第二个返回值为 false 表示不可达，这是正常结果而非错误。
// 约束：未知的起点或终点视为不可达；source==target 且节点存在时返回代价 0、路径 [source]。
func ShortestPath[N cmp.Ordered](g Graph[N], source, target N) (Path[N], bool) {
	if source == target {
		if !g.HasNode(source) {
			return Path[N]{}, false
		}
		return Path[N]{Cost: 0, Nodes: []N{source}}, true
	}
	if _, ok := g[source]; !ok {
		return Path[N]{}, false
	}
	dist := map[N]float64{source: 0}
	prev := make(map[N]N)
	visited := make(map[N]bool)
	h := &minHeap[N]{{node: source, dist: 0}}
	for h.Len() > 0 {
		cur := heap.Pop(h).(item[N])
		if visited[cur.node] {
			continue
		}
		visited[cur.node] = true
		if cur.node == target {
			break
		}
		for nb, w := range g[cur.node] {
			if visited[nb] {
				continue
			}
			nd := cur.dist + w
			old, seen := dist[nb]
			if !seen || nd < old {
				dist[nb] = nd
				prev[nb] = cur.node
				heap.Push(h, item[N]{node: nb, dist: nd})
			}
		}
	}
	if !visited[target] {
		return Path[N]{}, false
	}
	nodes := []N{target}
	for n := target; n != source; {
		n = prev[n]
		nodes = append(nodes, n)
	}
	slices.Reverse(nodes)
	return Path[N]{Cost: dist[target], Nodes: nodes}, true
}

// PathCost 按图中边权累加路径代价；路径含不存在的边时返回 +Inf
func PathCost[N cmp.Ordered](g Graph[N], nodes []N) float64 {
	total := 0.0
	for i := 1; i < len(nodes); i++ {
		w, ok := g[nodes[i-1]][nodes[i]]
		if !ok {
			return math.Inf(1)
		}
		total += w
	}
	return total
}
