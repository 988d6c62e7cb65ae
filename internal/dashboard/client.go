package dashboard

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/pairs"
	"github.com/betbot/pairsbot/pkg/httpclient"
)

// Client 访问运行中进程的看板 API（CLI 与 pairs-watch 使用）
type Client struct {
	base string
	http *httpclient.Client
}

// NewClient addr 可以是 ":3000"、"localhost:3000" 或完整 URL
func NewClient(addr string, timeout time.Duration) *Client {
	base := BaseURL(addr)
	return &Client{
		base: base,
		http: httpclient.NewClient(base, httpclient.Options{Timeout: timeout}),
	}
}

// BaseURL 把监听地址转换为 http URL
func BaseURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

// WebSocketURL /ws 地址
func (c *Client) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(c.base, "http") + "/ws"
}

func (c *Client) State(ctx context.Context) (*StateResponse, error) {
	var out StateResponse
	if _, err := c.http.DoRequest(ctx, http.MethodGet, "/api/state", nil, &out); err != nil {
		return nil, errors.Wrap(err, "dashboard state")
	}
	return &out, nil
}

func (c *Client) Resume(ctx context.Context, pair string) (*pairs.Status, error) {
	var out pairs.Status
	endpoint := "/api/pairs/" + url.PathEscape(pair) + "/resume"
	if _, err := c.http.DoRequest(ctx, http.MethodPost, endpoint, &httpclient.RequestOptions{Data: struct{}{}}, &out); err != nil {
		return nil, errors.Wrapf(err, "dashboard resume %s", pair)
	}
	return &out, nil
}

// IsNotFound 对端返回 404（未知配对）
func IsNotFound(err error) bool {
	var se *httpclient.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
