package graph

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"shelter-api/internal/geo"
	"shelter-api/internal/logger"
)

// 可步行的 highway 取值；机动车专用道路不在其中
var walkableHighways = map[string]bool{
	"footway": true, "path": true, "pedestrian": true, "steps": true, "living_street": true,
	"residential": true, "service": true, "track": true, "unclassified": true, "cycleway": true,
	"tertiary": true, "tertiary_link": true, "secondary": true, "secondary_link": true,
	"primary": true, "primary_link": true, "corridor": true, "bridleway": true,
}

// 文档注释：判断道路是否允许步行
// 约束：显式 foot=no 或 access=no/private（且未 foot=yes/designated 放行）排除；area=yes 的广场按可走处理。
func walkable(tags map[string]string) bool {
	if !walkableHighways[tags["highway"]] {
		return false
	}
	foot := tags["foot"]
	if foot == "no" {
		return false
	}
	if a := tags["access"]; (a == "no" || a == "private") && foot != "yes" && foot != "designated" {
		return false
	}
	return true
}

// BuildStats 构建统计
type BuildStats struct {
	Ways  int `json:"ways"`
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// 文档注释：从 OSM PBF 构建步行路网
// 背景：两遍扫描，第一遍收集可步行道路及其引用节点，第二遍只读取被引用节点的坐标；
// 相邻节点之间按球面距离连双向边（步行不受单行限制）。
// 约束：r 必须可 Seek；ctx 取消时中止扫描并返回其错误。
func BuildFromPBF(ctx context.Context, r io.ReadSeeker) (*Network, BuildStats, error) {
	l := logger.L()
	var st BuildStats
	var ways [][]int64
	needed := make(map[int64]struct{})

	scanner := osmpbf.New(ctx, r, runtime.GOMAXPROCS(-1))
	scanner.SkipNodes = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok || !walkable(w.TagMap()) {
			continue
		}
		ids := w.Nodes.NodeIDs()
		if len(ids) < 2 {
			continue
		}
		refs := make([]int64, len(ids))
		for i, id := range ids {
			refs[i] = id.FeatureID().Ref()
			needed[refs[i]] = struct{}{}
		}
		ways = append(ways, refs)
	}
	err := scanner.Err()
	scanner.Close()
	if err != nil {
		return nil, st, fmt.Errorf("scan ways: %w", err)
	}
	st.Ways = len(ways)
	l.Info("osm_ways_scanned", "ways", st.Ways, "nodes_needed", len(needed))

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, st, fmt.Errorf("rewind: %w", err)
	}
	n := NewNetwork()
	scanner = osmpbf.New(ctx, r, runtime.GOMAXPROCS(-1))
	scanner.SkipWays = true
	scanner.SkipRelations = true
	for scanner.Scan() {
		nd, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		id := nd.FeatureID().Ref()
		if _, want := needed[id]; !want {
			continue
		}
		c, err := geo.NewCoordinate(nd.Lat, nd.Lon)
		if err != nil {
			continue
		}
		n.AddNode(id, c)
	}
	err = scanner.Err()
	scanner.Close()
	if err != nil {
		return nil, st, fmt.Errorf("scan nodes: %w", err)
	}

	missing := 0
	for _, refs := range ways {
		for i := 1; i < len(refs); i++ {
			if !n.Connect(refs[i-1], refs[i]) {
				missing++
			}
		}
	}
	n.Freeze()
	st.Nodes = n.NodeCount()
	st.Edges = n.EdgeCount()
	l.Info("osm_network_built", "nodes", st.Nodes, "edges", st.Edges, "segments_skipped", missing)
	return n, st, nil
}
