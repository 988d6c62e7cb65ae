package execution

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/pkg/httpclient"
	"github.com/betbot/pairsbot/pkg/ratelimit"
)

// RESTVenueConfig REST 下单端点
type RESTVenueConfig struct {
	BaseURL   string
	OrderPath string // 默认 /orders
	APIKey    string
	Timeout   time.Duration
	Limiter   ratelimit.RateLimiter // 可选
}

// RESTVenue 通过 HTTP POST 市价单到交易网关
type RESTVenue struct {
	client  *httpclient.Client
	path    string
	limiter ratelimit.RateLimiter
}

type restOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Market        string `json:"market"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Size          string `json:"size"`
}

type restOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func NewRESTVenue(cfg RESTVenueConfig) (*RESTVenue, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("rest venue: base url is empty")
	}
	if cfg.OrderPath == "" {
		cfg.OrderPath = "/orders"
	}
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-API-Key"] = cfg.APIKey
	}
	// 下单不重试：重复提交的代价高于一次失败
	client := httpclient.NewClient(cfg.BaseURL, httpclient.Options{Timeout: cfg.Timeout, Headers: headers})
	return &RESTVenue{client: client, path: cfg.OrderPath, limiter: cfg.Limiter}, nil
}

func (v *RESTVenue) PlaceOrder(ctx context.Context, order Order) (*Ack, error) {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "place %s %s: rate limit", order.Side, order.MarketID)
		}
	}
	req := restOrderRequest{
		ClientOrderID: order.ClientOrderID,
		Market:        order.MarketID,
		Side:          strings.ToLower(string(order.Side)),
		Type:          "market",
		Size:          order.Size.String(),
	}
	var out restOrderResponse
	if _, err := v.client.DoRequest(ctx, http.MethodPost, v.path, &httpclient.RequestOptions{Data: req}, &out); err != nil {
		return nil, errors.Wrapf(err, "place %s %s %s", order.Side, order.Size, order.MarketID)
	}
	if out.OrderID == "" {
		return nil, errors.Errorf("place %s %s: empty order id in response", order.Side, order.MarketID)
	}
	if s := strings.ToLower(out.Status); s == "rejected" || s == "canceled" || s == "cancelled" {
		return nil, errors.Errorf("place %s %s: order %s %s", order.Side, order.MarketID, out.OrderID, out.Status)
	}
	return &Ack{OrderID: out.OrderID, ClientOrderID: order.ClientOrderID, Status: out.Status, AckedAt: time.Now().UTC()}, nil
}
