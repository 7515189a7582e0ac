// 包 geoip：由客户端 IP 估算大致位置，作为尚未取得定位时的初始查询点
package geoip

import (
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"shelter-api/internal/geo"
)

// ErrNotFound 库中没有该地址的坐标
var ErrNotFound = errors.New("no location for address")

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Locator GeoLite2/GeoIP2 City 库查询
type Locator struct {
	r cityReader
}

// Open 打开 mmdb 文件
func Open(path string) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db %s: %w", path, err)
	}
	return &Locator{r: r}, nil
}

func (l *Locator) Close() error { return l.r.Close() }

// Result 估算结果；AccuracyKm 为库给出的误差半径
type Result struct {
	IP         string         `json:"ip"`
	Coordinate geo.Coordinate `json:"coordinate"`
	AccuracyKm uint16         `json:"accuracy_km"`
	City       string         `json:"city,omitempty"`
	Country    string         `json:"country,omitempty"`
}

// 文档注释：查询 IP 的大致位置
// 约束：非法 IP 返回 geo.ErrInvalidInput；库中无坐标（或为 0,0）返回 ErrNotFound。
func (l *Locator) Locate(ip string) (Result, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Result{}, fmt.Errorf("ip %q: %w", ip, geo.ErrInvalidInput)
	}
	rec, err := l.r.City(parsed)
	if err != nil {
		return Result{}, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	lat, lon := rec.Location.Latitude, rec.Location.Longitude
	if lat == 0 && lon == 0 {
		return Result{}, fmt.Errorf("%s: %w", ip, ErrNotFound)
	}
	c, err := geo.NewCoordinate(lat, lon)
	if err != nil {
		return Result{}, err
	}
	return Result{
		IP:         ip,
		Coordinate: c,
		AccuracyKm: rec.Location.AccuracyRadius,
		City:       name(rec.City.Names),
		Country:    rec.Country.IsoCode,
	}, nil
}

func name(names map[string]string) string {
	for _, lang := range []string{"uk", "en", "ru"} {
		if n := names[lang]; n != "" {
			return n
		}
	}
	return ""
}
