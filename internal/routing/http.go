package routing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 5 * time.Second

// errStatus 非 200 响应
var errStatus = errors.New("unexpected status")

// 文档注释：GET 并解码 JSON
// 背景：外部提供方共用；状态码随错误返回，调用方据此区分“不可达”与瞬时失败。
// 约束：非 200 时仍尝试把响应体解码到 errBody（可为 nil），便于读取提供方的错误信息。
func getJSON(ctx context.Context, client *http.Client, provider, op, url string, out, errBody any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, &ProviderError{Provider: provider, Op: op, Err: err}
	}
	req.Header.Set("accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, &ProviderError{Provider: provider, Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if errBody != nil {
			_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(errBody)
		}
		return resp.StatusCode, &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Err: errStatus}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, &ProviderError{Provider: provider, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, nil
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: defaultHTTPTimeout}
}
