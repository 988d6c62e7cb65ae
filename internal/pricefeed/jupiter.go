package pricefeed

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/domain"
	"github.com/betbot/pairsbot/pkg/httpclient"
	"github.com/betbot/pairsbot/pkg/ratelimit"
)

const (
	DefaultJupiterURL = "https://api.jup.ag"
	// USDCMint 报价币种（Solana USDC mint）
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// JupiterConfig Jupiter price v2 配置
type JupiterConfig struct {
	BaseURL string
	VsToken string
	Timeout time.Duration
	Limiter ratelimit.RateLimiter // 可选：多个配对共享的请求限流
}

// JupiterSource 通过 /price/v2 获取以 VsToken 计价的价格
type JupiterSource struct {
	client  *httpclient.Client
	vsToken string
	limiter ratelimit.RateLimiter
}

type jupiterPrice struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Price string `json:"price"`
}

type jupiterResponse struct {
	Data      map[string]*jupiterPrice `json:"data"`
	TimeTaken float64                  `json:"timeTaken"`
}

func NewJupiterSource(cfg JupiterConfig) *JupiterSource {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultJupiterURL
	}
	if cfg.VsToken == "" {
		cfg.VsToken = USDCMint
	}
	return &JupiterSource{
		client:  httpclient.NewClient(cfg.BaseURL, httpclient.Options{Timeout: cfg.Timeout, RetryCount: 1}),
		vsToken: cfg.VsToken,
		limiter: cfg.Limiter,
	}
}

func (j *JupiterSource) GetPrice(ctx context.Context, id string) (float64, error) {
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return 0, errors.Wrap(domain.ErrDataUnavailable, err.Error())
		}
	}
	var out jupiterResponse
	_, err := j.client.DoRequest(ctx, http.MethodGet, "/price/v2", &httpclient.RequestOptions{
		Params: map[string]string{"ids": id, "vsToken": j.vsToken},
	}, &out)
	if err != nil {
		return 0, errors.Wrap(domain.ErrDataUnavailable, err.Error())
	}
	entry := out.Data[id]
	if entry == nil || entry.Price == "" {
		return 0, errors.Wrapf(domain.ErrDataUnavailable, "jupiter: no price for %s", id)
	}
	p, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil || p <= 0 {
		return 0, errors.Wrapf(domain.ErrDataUnavailable, "jupiter: bad price %q for %s", entry.Price, id)
	}
	return p, nil
}
