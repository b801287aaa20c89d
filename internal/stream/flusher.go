package stream

import (
	"context"
	"sync"
	"time"

	"github.com/purpose168/chorus/internal/log"
	"golang.org/x/time/rate"
)

// DefaultFlushInterval 可见更新的最大合并延迟
const DefaultFlushInterval = 50 * time.Millisecond

// Flusher 合并高频更新
// Mark 只做标记；后台循环以不超过 interval 的频率调用 flush。
// Close 保证在所有标记之后最后执行一次 flush。
type Flusher struct {
	flush   func()
	limiter *rate.Limiter

	flushMu sync.Mutex
	closed  bool
	dirty   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewFlusher 创建并启动合并器，interval <= 0 时使用默认值
func NewFlusher(interval time.Duration, flush func()) *Flusher {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	f := &Flusher{
		flush:   flush,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		dirty:   make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	f.wg.Go(f.loop)
	return f
}

// Mark 标记存在待刷新的更新，不阻塞
func (f *Flusher) Mark() {
	select {
	case f.dirty <- struct{}{}:
	default:
	}
}

// Now 立即同步刷新，Close 之后为空操作
func (f *Flusher) Now() {
	f.flushMu.Lock()
	defer f.flushMu.Unlock()
	if f.closed {
		return
	}
	f.flush()
}

// Close 停止后台循环并执行最后一次刷新
func (f *Flusher) Close() {
	f.once.Do(func() {
		f.cancel()
		f.wg.Wait()
		f.flushMu.Lock()
		defer f.flushMu.Unlock()
		f.flush()
		f.closed = true
	})
}

func (f *Flusher) loop() {
	defer log.RecoverPanic("stream.Flusher", nil)
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.dirty:
		}
		if err := f.limiter.Wait(f.ctx); err != nil {
			return
		}
		f.Now()
	}
}
