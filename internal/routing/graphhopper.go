package routing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"shelter-api/internal/geo"
)

// DefaultGraphHopperURL GraphHopper 公共 API 根路径
const DefaultGraphHopperURL = "https://graphhopper.com/api/1"

// 文档注释：GraphHopper 步行导航
// 背景：调用 /route（vehicle=foot），返回 paths[0].distance（米）与 paths[0].time（毫秒）。
// 约束：400 且提示找不到点或连接时视为不可达；其他非 200 为瞬时失败。需要 API key。
type GraphHopper struct {
	base   string
	key    string
	client *http.Client
}

func NewGraphHopper(base, key string, client *http.Client) *GraphHopper {
	if base == "" {
		base = DefaultGraphHopperURL
	}
	return &GraphHopper{base: strings.TrimRight(base, "/"), key: key, client: clientOrDefault(client)}
}

func (g *GraphHopper) Name() string { return "graphhopper" }

type ghResponse struct {
	Paths []struct {
		Distance float64 `json:"distance"`
		Time     float64 `json:"time"`
	} `json:"paths"`
}

type ghError struct {
	Message string `json:"message"`
}

func latLon(c geo.Coordinate) string {
	return strconv.FormatFloat(c.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lon, 'f', 6, 64)
}

func (g *GraphHopper) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (RouteResult, error) {
	q := url.Values{}
	q.Add("point", latLon(origin))
	q.Add("point", latLon(dest))
	q.Set("vehicle", "foot")
	q.Set("points_encoded", "false")
	q.Set("calc_points", "false")
	q.Set("key", g.key)
	var out ghResponse
	var ge ghError
	status, err := getJSON(ctx, g.client, g.Name(), "route", g.base+"/route?"+q.Encode(), &out, &ge)
	if err != nil {
		if status == http.StatusBadRequest && ghUnreachable(ge.Message) {
			return RouteResult{}, fmt.Errorf("%s: %s: %w", g.Name(), ge.Message, ErrUnreachable)
		}
		return RouteResult{}, err
	}
	if len(out.Paths) == 0 {
		return RouteResult{}, fmt.Errorf("%s: empty paths: %w", g.Name(), ErrUnreachable)
	}
	return RouteResult{DistanceMeters: out.Paths[0].Distance, ETAMillis: out.Paths[0].Time}, nil
}

func ghUnreachable(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "cannot find point") || strings.Contains(m, "not found")
}

// Heartbeat 访问 /info 探测可用性与 key 有效性
func (g *GraphHopper) Heartbeat(ctx context.Context) error {
	_, err := getJSON(ctx, g.client, g.Name(), "info", g.base+"/info?key="+url.QueryEscape(g.key), nil, nil)
	return err
}
