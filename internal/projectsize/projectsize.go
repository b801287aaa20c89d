// Package projectsize 缓存项目规模估算，供提示词与界面显示使用。
package projectsize

import (
	"bytes"
	"context"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/purpose168/chorus/internal/csync"
	"github.com/purpose168/chorus/internal/fsext"
	"github.com/purpose168/chorus/internal/log"
	"github.com/purpose168/chorus/internal/usage"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL 估算结果的有效期
const DefaultTTL = 5 * time.Minute

const (
	// maxReadSize 超过该大小的文件按字节数估算，不读取内容
	maxReadSize = 256 << 10
	sniffLen    = 512
)

// Estimate 项目规模估算
type Estimate struct {
	Files       int
	Bytes       int64
	Tokens      int64
	Fingerprint uint64
	ComputedAt  time.Time
}

type fileStat struct {
	size    int64
	modTime int64
	tokens  int64
}

type entry struct {
	est   Estimate
	files map[string]fileStat
}

// Cache 按项目根目录缓存估算结果
// 过期后重新遍历，大小与修改时间未变的文件复用上次的令牌数
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	entries *csync.Map[string, *entry]
	group   singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCache 创建缓存，ttl <= 0 时使用 DefaultTTL
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: csync.NewMap[string, *entry](),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Close 取消后台扫描并等待其退出
func (c *Cache) Close() {
	c.cancel()
	c.wg.Wait()
}

// Peek 返回已缓存的估算，不触发扫描，过期结果仍会返回
func (c *Cache) Peek(root string) (files int, tokens int64, ok bool) {
	e, ok := c.entries.Get(root)
	if !ok {
		return 0, 0, false
	}
	return e.est.Files, e.est.Tokens, true
}

// Get 返回估算，缓存过期或不存在时扫描；并发调用共享同一次扫描
func (c *Cache) Get(ctx context.Context, root string) (Estimate, error) {
	if e, ok := c.entries.Get(root); ok && c.now().Sub(e.est.ComputedAt) < c.ttl {
		return e.est, nil
	}
	ch := c.group.DoChan(root, func() (any, error) {
		return c.scan(c.ctx, root)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Estimate{}, res.Err
		}
		return res.Val.(Estimate), nil
	case <-ctx.Done():
		return Estimate{}, ctx.Err()
	}
}

// Refresh 在后台刷新过期的估算，从不阻塞调用方
func (c *Cache) Refresh(root string) {
	if root == "" || c.ctx.Err() != nil {
		return
	}
	if e, ok := c.entries.Get(root); ok && c.now().Sub(e.est.ComputedAt) < c.ttl {
		return
	}
	c.wg.Go(func() {
		defer log.RecoverPanic("projectsize.Refresh", nil)
		if _, err := c.Get(c.ctx, root); err != nil && c.ctx.Err() == nil {
			slog.Debug("项目规模估算失败", "root", root, "error", err)
		}
	})
}

// Invalidate 丢弃缓存的估算
func (c *Cache) Invalidate(root string) {
	c.entries.Del(root)
}

func (c *Cache) scan(ctx context.Context, root string) (Estimate, error) {
	var prev map[string]fileStat
	if e, ok := c.entries.Get(root); ok {
		prev = e.files
	}

	var mu sync.Mutex
	files := make(map[string]fileStat)
	err := fsext.Walk(ctx, root, func(path string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return nil
		}
		st := fileStat{size: info.Size(), modTime: info.ModTime().UnixNano()}
		if old, ok := prev[path]; ok && old.size == st.size && old.modTime == st.modTime {
			st.tokens = old.tokens
		} else {
			st.tokens = estimateFile(path, st.size)
		}
		mu.Lock()
		files[path] = st
		mu.Unlock()
		return nil
	})
	if err != nil {
		return Estimate{}, err
	}

	est := summarize(files)
	est.ComputedAt = c.now()
	c.entries.Set(root, &entry{est: est, files: files})
	return est, nil
}

func summarize(files map[string]fileStat) Estimate {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	h := xxh3.New()
	var est Estimate
	for _, p := range paths {
		st := files[p]
		est.Files++
		est.Bytes += st.size
		est.Tokens += st.tokens
		_, _ = h.WriteString(p)
		_, _ = h.WriteString(strconv.FormatInt(st.size, 10))
	}
	est.Fingerprint = h.Sum64()
	return est
}

// estimateFile 估算单个文件的令牌数，二进制文件计为 0
func estimateFile(path string, size int64) int64 {
	if size == 0 {
		return 0
	}
	if size > maxReadSize {
		return usage.EstimateChars(int(size))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	if bytes.IndexByte(data[:min(len(data), sniffLen)], 0) >= 0 {
		return 0
	}
	return usage.Baseline{}.Estimate(string(data))
}
