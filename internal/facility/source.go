package facility

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// 文档注释：设施数据源（拉取式）
// 背景：数据库、对象存储、本地文件均实现该接口；传输与时效策略由实现决定。
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Facility, error)
}

// FileSource 读取本地 JSON 数组文件（与导出接口格式一致）
type FileSource struct {
	Path string
}

func (f FileSource) Name() string { return "file" }

func (f FileSource) Load(ctx context.Context) ([]Facility, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read facilities %s: %w", f.Path, err)
	}
	return DecodeJSON(b)
}

// DecodeJSON 解析设施 JSON 数组
func DecodeJSON(b []byte) ([]Facility, error) {
	var out []Facility
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode facilities: %w", err)
	}
	return out, nil
}
