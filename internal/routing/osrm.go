package routing

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"shelter-api/internal/geo"
)

// DefaultOSRMURL OSRM 公共演示服务
const DefaultOSRMURL = "http://router.project-osrm.org"

// 文档注释：OSRM 步行路线
// 背景：/route/v1/foot/{lon},{lat};{lon},{lat}；公共演示实例不区分出行方式，
// 因此耗时取 max(距离/步行速度, 返回耗时)。
// 约束：code 为 NoRoute/NoSegment 视为不可达；其余非 Ok 为瞬时失败。
type OSRM struct {
	base     string
	speedKmh float64
	client   *http.Client
}

func NewOSRM(base string, walkingSpeedKmh float64, client *http.Client) *OSRM {
	if base == "" {
		base = DefaultOSRMURL
	}
	if walkingSpeedKmh <= 0 {
		walkingSpeedKmh = DefaultWalkingSpeedKmh
	}
	return &OSRM{base: strings.TrimRight(base, "/"), speedKmh: walkingSpeedKmh, client: clientOrDefault(client)}
}

func (o *OSRM) Name() string { return "osrm" }

type osrmResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Routes  []struct {
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func lonLat(c geo.Coordinate) string {
	return strconv.FormatFloat(c.Lon, 'f', 6, 64) + "," + strconv.FormatFloat(c.Lat, 'f', 6, 64)
}

func (o *OSRM) ComputeRoute(ctx context.Context, origin, dest geo.Coordinate) (RouteResult, error) {
	u := fmt.Sprintf("%s/route/v1/foot/%s;%s?overview=false", o.base, lonLat(origin), lonLat(dest))
	var out osrmResponse
	var errBody osrmResponse
	if _, err := getJSON(ctx, o.client, o.Name(), "route", u, &out, &errBody); err != nil {
		if osrmUnreachable(errBody.Code) {
			return RouteResult{}, fmt.Errorf("%s: %s: %w", o.Name(), errBody.Code, ErrUnreachable)
		}
		return RouteResult{}, err
	}
	if osrmUnreachable(out.Code) || (out.Code == "Ok" && len(out.Routes) == 0) {
		return RouteResult{}, fmt.Errorf("%s: %s: %w", o.Name(), out.Code, ErrUnreachable)
	}
	if out.Code != "Ok" {
		return RouteResult{}, &ProviderError{Provider: o.Name(), Op: "route", Err: fmt.Errorf("code %s: %s", out.Code, out.Message)}
	}
	r := out.Routes[0]
	eta := math.Max(WalkingETAMillis(r.Distance, o.speedKmh), r.Duration*1000)
	return RouteResult{DistanceMeters: r.Distance, ETAMillis: eta}, nil
}

func osrmUnreachable(code string) bool { return code == "NoRoute" || code == "NoSegment" }

// Heartbeat 调用 /nearest 探测服务可用性
func (o *OSRM) Heartbeat(ctx context.Context) error {
	var out osrmResponse
	if _, err := getJSON(ctx, o.client, o.Name(), "nearest", o.base+"/nearest/v1/foot/30.523400,50.450100", &out, nil); err != nil {
		return err
	}
	if out.Code != "Ok" {
		return &ProviderError{Provider: o.Name(), Op: "nearest", Err: fmt.Errorf("code %s", out.Code)}
	}
	return nil
}
