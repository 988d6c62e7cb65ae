package domain

// RoleAssignment 本周期两个标的扮演的角色。
// RolesInverted 表示回归斜率为负，配置中的 X 充当 Y'，配置中的 Y 充当 X'。
type RoleAssignment string

const (
	RolesNormal   RoleAssignment = "normal"
	RolesInverted RoleAssignment = "inverted"
)

// Inverted 是否交换了角色
func (r RoleAssignment) Inverted() bool { return r == RolesInverted }

// Prices 按角色返回 (priceY', priceX')
func (r RoleAssignment) Prices(s PriceSample) (float64, float64) {
	if r.Inverted() {
		return s.PriceX, s.PriceY
	}
	return s.PriceY, s.PriceX
}

// Instruments 按角色返回 (Y', X')
func (r RoleAssignment) Instruments(p Pair) (Instrument, Instrument) {
	if r.Inverted() {
		return p.X, p.Y
	}
	return p.Y, p.X
}

// HedgeEstimate 对冲比率估计
type HedgeEstimate struct {
	BetaRaw  float64        `json:"beta_raw"`  // 原始回归斜率
	BetaUsed float64        `json:"beta_used"` // |BetaRaw|
	Roles    RoleAssignment `json:"roles"`
}

// Inverted 斜率为负时为 true
func (h HedgeEstimate) Inverted() bool { return h.Roles.Inverted() }

// NewHedgeEstimate 由原始斜率构造，负斜率时交换角色并取绝对值
func NewHedgeEstimate(betaRaw float64) HedgeEstimate {
	if betaRaw < 0 {
		return HedgeEstimate{BetaRaw: betaRaw, BetaUsed: -betaRaw, Roles: RolesInverted}
	}
	return HedgeEstimate{BetaRaw: betaRaw, BetaUsed: betaRaw, Roles: RolesNormal}
}

// SpreadStats 价差窗口分布
type SpreadStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}
