package stream

import (
	"sync"
	"time"

	"github.com/purpose168/chorus/internal/usage"
)

const (
	// RateWindow 流速统计的滑动窗口
	RateWindow = 2 * time.Second
	// rateMinElapsed 样本跨度不足该值时不报告流速
	rateMinElapsed = 100 * time.Millisecond
)

type sample struct {
	chars int
	at    time.Time
}

// RateMeter 基于文本增量的流速估算，单位为令牌每秒
type RateMeter struct {
	mu      sync.Mutex
	now     func() time.Time
	samples []sample
}

// NewRateMeter 创建流速计，now 为 nil 时使用系统时钟
func NewRateMeter(now func() time.Time) *RateMeter {
	if now == nil {
		now = time.Now
	}
	return &RateMeter{now: now}
}

// Record 记录一次文本增量
func (r *RateMeter) Record(chars int) {
	if chars <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	r.samples = append(r.samples, sample{chars: chars, at: now})
}

// Rate 返回窗口内的令牌每秒
func (r *RateMeter) Rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.prune(now)
	if len(r.samples) == 0 {
		return 0
	}
	elapsed := now.Sub(r.samples[0].at)
	if elapsed <= rateMinElapsed {
		return 0
	}
	total := 0
	for _, s := range r.samples {
		total += s.chars
	}
	return float64(total) / usage.CharsPerToken / elapsed.Seconds()
}

// Reset 清空样本，轮次结束或中止时调用
func (r *RateMeter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}

func (r *RateMeter) prune(now time.Time) {
	cutoff := now.Add(-RateWindow)
	i := 0
	for i < len(r.samples) && r.samples[i].at.Before(cutoff) {
		i++
	}
	r.samples = r.samples[i:]
}
