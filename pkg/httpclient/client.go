package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Options 客户端参数
type Options struct {
	Timeout    time.Duration
	RetryCount int
	Headers    map[string]string // 每个请求都会带上的 Header（例如 API key）
	UserAgent  string
}

type Client struct {
	client  *resty.Client
	headers map[string]string
	ua      string
}

func NewClient(host string, opts Options) *Client {
	host = strings.TrimSuffix(host, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pairsbot/1.0"
	}

	// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
	client := resty.New().
		SetBaseURL(host).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时遵循 Retry-After
			if resp != nil && resp.StatusCode() == http.StatusTooManyRequests {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		})

	return &Client{client: client, headers: opts.Headers, ua: opts.UserAgent}
}

type RequestOptions struct {
	Headers map[string]string
	Data    any
	Params  map[string]string
}

// 仅设置本次请求的 Header（不要再改 client 级 Header）
func (c *Client) newRequest(ctx context.Context) *resty.Request {
	r := c.client.R()
	if ctx != nil {
		r.SetContext(ctx)
	}
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", c.ua)
	for k, v := range c.headers {
		r.SetHeader(k, v)
	}
	return r
}

// DoRequest 发送请求；out 非 nil 时解析 2xx 响应体。非 2xx 返回错误。
func (c *Client) DoRequest(ctx context.Context, method, endpoint string, opt *RequestOptions, out any) (*resty.Response, error) {
	rc := c.newRequest(ctx)
	if opt != nil {
		for k, v := range opt.Headers {
			rc.SetHeader(k, v)
		}
		if opt.Params != nil {
			rc.SetQueryParams(opt.Params)
		}
		if opt.Data != nil {
			rc.SetHeader("Content-Type", "application/json")
			rc.SetBody(opt.Data)
		}
	}
	if out != nil {
		rc.SetResult(out)
	}

	var (
		resp *resty.Response
		err  error
	)
	switch strings.ToUpper(method) {
	case http.MethodGet:
		resp, err = rc.Get(endpoint)
	case http.MethodPost:
		resp, err = rc.Post(endpoint)
	case http.MethodDelete:
		resp, err = rc.Delete(endpoint)
	case http.MethodPut:
		resp, err = rc.Put(endpoint)
	default:
		return nil, errors.Errorf("unsupported method: %s", method)
	}
	return resp, CheckResponse(resp, err)
}

// CheckResponse 把传输错误与非 2xx 统一为 error
func CheckResponse(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "http request")
	}
	if resp.IsSuccess() {
		return nil
	}
	var body any
	b := resp.Body()
	_ = json.Unmarshal(b, &body)
	if body == nil {
		body = string(b)
	}
	return &StatusError{Code: resp.StatusCode(), Body: body}
}

// StatusError 非 2xx 响应
type StatusError struct {
	Code int
	Body any
}

func (e *StatusError) Error() string {
	b, _ := json.Marshal(e.Body)
	return "http non-2xx: " + http.StatusText(e.Code) + " " + string(b)
}
