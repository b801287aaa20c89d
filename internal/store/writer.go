package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/purpose168/chorus/internal/log"
)

const writeTimeout = 5 * time.Second

type op struct {
	key     string
	value   []byte
	barrier chan struct{}
}

// Writer 有序的后台写入器
// 写入按提交顺序执行，调用方不等待结果；失败记录日志后丢弃。
type Writer struct {
	store Store

	mu     sync.Mutex
	queue  []op
	closed bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewWriter 创建并启动后台写入器
func NewWriter(s Store) *Writer {
	w := &Writer{
		store: s,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	w.wg.Go(w.loop)
	return w
}

// Set 将一次写入加入队列
func (w *Writer) Set(key string, value []byte) {
	w.enqueue(op{key: key, value: value})
}

// SetJSON 序列化后写入；序列化失败只记录日志
func (w *Writer) SetJSON(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("序列化持久化数据失败", "key", key, "error", err)
		return
	}
	w.Set(key, data)
}

// Delete 清除键
func (w *Writer) Delete(key string) {
	w.Set(key, nil)
}

// Flush 等待此前加入队列的全部写入完成
func (w *Writer) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !w.enqueue(op{barrier: barrier}) {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 写完队列中剩余的数据后停止
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
}

func (w *Writer) enqueue(o op) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		slog.Warn("写入器已关闭，丢弃写入", "key", o.key)
		if o.barrier != nil {
			close(o.barrier)
		}
		return false
	}
	w.queue = append(w.queue, o)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *Writer) loop() {
	defer log.RecoverPanic("store.Writer", nil)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.done:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		batch := w.queue
		w.queue = nil
		w.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, o := range batch {
			if o.barrier != nil {
				close(o.barrier)
				continue
			}
			w.write(o)
		}
	}
}

func (w *Writer) write(o op) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := w.store.Set(ctx, o.key, o.value); err != nil {
		slog.Warn("持久化写入失败", "key", o.key, "error", err)
	}
}
