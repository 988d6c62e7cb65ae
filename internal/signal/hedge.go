package signal

import (
	"math"

	"github.com/pkg/errors"

	"github.com/betbot/pairsbot/internal/domain"
)

// EstimateHedge 对数空间 OLS：ln(Y) = alpha + beta*ln(X)，alpha 丢弃。
// 每次都从窗口全量重算，不做增量更新。
func EstimateHedge(windowY, windowX []float64) (domain.HedgeEstimate, error) {
	n := len(windowY)
	if n != len(windowX) {
		return domain.HedgeEstimate{}, errors.Errorf("hedge: window length mismatch y=%d x=%d", len(windowY), len(windowX))
	}
	if n < 2 {
		return domain.HedgeEstimate{}, errors.Wrapf(domain.ErrInsufficientHistory, "hedge: need at least 2 points, got %d", n)
	}

	lx := make([]float64, n)
	ly := make([]float64, n)
	var meanX, meanY float64
	for i := 0; i < n; i++ {
		if windowX[i] <= 0 || windowY[i] <= 0 {
			return domain.HedgeEstimate{}, errors.Wrapf(domain.ErrInvalidSample, "hedge: non-positive price at %d", i)
		}
		lx[i] = math.Log(windowX[i])
		ly[i] = math.Log(windowY[i])
		meanX += lx[i]
		meanY += ly[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var sxy, sxx float64
	for i := 0; i < n; i++ {
		dx := lx[i] - meanX
		sxy += dx * (ly[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return domain.HedgeEstimate{}, errors.Wrap(domain.ErrDegenerateDistribution, "hedge: ln(X) has zero variance")
	}
	beta := sxy / sxx
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return domain.HedgeEstimate{}, errors.Wrap(domain.ErrDegenerateDistribution, "hedge: non-finite slope")
	}
	return domain.NewHedgeEstimate(beta), nil
}
