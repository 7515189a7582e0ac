package graph

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"shelter-api/internal/geo"
)

// ErrEmptyNetwork 路网没有任何节点
var ErrEmptyNetwork = errors.New("empty network")

// 文档注释：带地理坐标的步行路网
// 背景：节点为 OSM 节点 ID，边权为相邻节点间的球面距离（米）；Freeze 后只读，可被并发查询。
// 约束：构建阶段（AddNode/Connect）非并发安全；查询前必须 Freeze 以建立 KD-Tree。
type Network struct {
	Graph Graph[int64]
	nodes map[int64]geo.Coordinate
	tree  *kdNode
}

func NewNetwork() *Network {
	return &Network{Graph: make(Graph[int64]), nodes: make(map[int64]geo.Coordinate)}
}

func (n *Network) AddNode(id int64, c geo.Coordinate) { n.nodes[id] = c }

// Connect 以球面距离为权添加双向边；任一端点坐标未知时返回 false
func (n *Network) Connect(a, b int64) bool {
	ca, okA := n.nodes[a]
	cb, okB := n.nodes[b]
	if !okA || !okB || a == b {
		return false
	}
	w := geo.Distance(ca, cb)
	n.Graph.AddEdge(a, b, w)
	n.Graph.AddEdge(b, a, w)
	return true
}

// Freeze 剔除无边孤立节点并建立最近邻索引
func (n *Network) Freeze() {
	ps := make([]point, 0, len(n.Graph))
	for id, c := range n.nodes {
		if _, ok := n.Graph[id]; !ok {
			delete(n.nodes, id)
			continue
		}
		ps = append(ps, point{id: id, c: c})
	}
	n.tree = buildKD(ps, 0)
}

func (n *Network) NodeCount() int { return len(n.nodes) }

func (n *Network) EdgeCount() int {
	c := 0
	for _, adj := range n.Graph {
		c += len(adj)
	}
	return c
}

func (n *Network) Coordinate(id int64) (geo.Coordinate, bool) {
	c, ok := n.nodes[id]
	return c, ok
}

// 文档注释：吸附到最近路网节点
// 返回：节点 ID、吸附距离（米）；路网为空时返回 ErrEmptyNetwork。
func (n *Network) Snap(c geo.Coordinate) (int64, float64, error) {
	if n.tree == nil {
		return 0, 0, ErrEmptyNetwork
	}
	p, d := nearest(n.tree, c)
	return p.id, d, nil
}

type fileNode struct {
	ID  int64   `json:"id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type fileEdge struct {
	From int64   `json:"from"`
	To   int64   `json:"to"`
	W    float64 `json:"w"`
}

type fileFormat struct {
	Nodes []fileNode `json:"nodes"`
	Edges []fileEdge `json:"edges"`
}

// Save 以 JSON 写出路网（节点与边按 ID 排序，便于比对）
func (n *Network) Save(w io.Writer) error {
	var ff fileFormat
	for id, c := range n.nodes {
		ff.Nodes = append(ff.Nodes, fileNode{ID: id, Lat: c.Lat, Lon: c.Lon})
	}
	slices.SortFunc(ff.Nodes, func(a, b fileNode) int { return cmp.Compare(a.ID, b.ID) })
	for from, adj := range n.Graph {
		for to, wt := range adj {
			ff.Edges = append(ff.Edges, fileEdge{From: from, To: to, W: wt})
		}
	}
	slices.SortFunc(ff.Edges, func(a, b fileEdge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
	enc := json.NewEncoder(w)
	return enc.Encode(ff)
}

// Load 读取 JSON 路网并 Freeze；边权为负或端点缺失视为格式错误
func Load(r io.Reader) (*Network, error) {
	var ff fileFormat
	if err := json.NewDecoder(r).Decode(&ff); err != nil {
		return nil, fmt.Errorf("decode network: %w", err)
	}
	n := NewNetwork()
	for _, nd := range ff.Nodes {
		c, err := geo.NewCoordinate(nd.Lat, nd.Lon)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", nd.ID, err)
		}
		n.AddNode(nd.ID, c)
	}
	for _, e := range ff.Edges {
		if _, ok := n.nodes[e.From]; !ok {
			return nil, fmt.Errorf("edge %d->%d: unknown node %d", e.From, e.To, e.From)
		}
		if _, ok := n.nodes[e.To]; !ok {
			return nil, fmt.Errorf("edge %d->%d: unknown node %d", e.From, e.To, e.To)
		}
		if e.W < 0 {
			return nil, fmt.Errorf("edge %d->%d: negative weight %v", e.From, e.To, e.W)
		}
		n.Graph.AddEdge(e.From, e.To, e.W)
	}
	n.Freeze()
	return n, nil
}

func LoadFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func (n *Network) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := n.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
