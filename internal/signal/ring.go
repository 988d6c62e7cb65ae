package signal

// RollingWindow 固定容量的环形缓冲区（FIFO 淘汰）。
// 底层数组一次性分配，head 指向最旧元素，count 为当前长度。
type RollingWindow[T any] struct {
	buf   []T
	head  int
	count int
}

// NewRollingWindow 创建容量为 capacity 的窗口（capacity 至少为 1）
func NewRollingWindow[T any](capacity int) *RollingWindow[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingWindow[T]{buf: make([]T, capacity)}
}

// Push 追加元素；已满时覆盖最旧元素并返回 (被淘汰元素, true)
func (w *RollingWindow[T]) Push(v T) (evicted T, ok bool) {
	capacity := len(w.buf)
	if w.count < capacity {
		w.buf[(w.head+w.count)%capacity] = v
		w.count++
		return evicted, false
	}
	evicted = w.buf[w.head]
	w.buf[w.head] = v
	w.head = (w.head + 1) % capacity
	return evicted, true
}

// Len 当前长度
func (w *RollingWindow[T]) Len() int { return w.count }

// Cap 容量
func (w *RollingWindow[T]) Cap() int { return len(w.buf) }

// Full 是否已满
func (w *RollingWindow[T]) Full() bool { return w.count == len(w.buf) }

// At 返回第 i 个元素（0 为最旧）
func (w *RollingWindow[T]) At(i int) T {
	if i < 0 || i >= w.count {
		panic("signal: rolling window index out of range")
	}
	return w.buf[(w.head+i)%len(w.buf)]
}

// Last 返回最新的 n 个元素（按时间顺序的新切片）。n 超过长度时返回 nil。
func (w *RollingWindow[T]) Last(n int) []T {
	if n < 0 || n > w.count {
		return nil
	}
	out := make([]T, n)
	start := w.count - n
	for i := 0; i < n; i++ {
		out[i] = w.At(start + i)
	}
	return out
}

// Values 全部元素的拷贝（最旧在前）
func (w *RollingWindow[T]) Values() []T { return w.Last(w.count) }

// Reset 清空窗口（保留底层数组）
func (w *RollingWindow[T]) Reset() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.head, w.count = 0, 0
}
