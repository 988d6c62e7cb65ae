package domain

import "github.com/pkg/errors"

// 错误分类。前三类在轮询循环内被本地消化（跳过本周期），
// ErrPartialExecution / ErrInvalidConfiguration 需要人工介入。
var (
	// ErrDataUnavailable 价格获取失败或为空
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientHistory 窗口尚未填满（预热期的正常状态）
	ErrInsufficientHistory = errors.New("insufficient history")
	// ErrDegenerateDistribution 方差为 0，无法标准化
	ErrDegenerateDistribution = errors.New("degenerate distribution")
	// ErrPartialExecution 多腿下单只有部分腿被确认，真实敞口与内部状态不一致
	ErrPartialExecution = errors.New("partial execution")
	// ErrInvalidConfiguration 启动时配置校验失败
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrInvalidSample 非正/NaN 价格或时间戳非递增
	ErrInvalidSample = errors.New("invalid sample")
)
