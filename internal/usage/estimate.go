package usage

import (
	"log/slog"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rivo/uniseg"
)

// CharsPerToken 基线估算的字符/令牌比
const CharsPerToken = 4

// EstimateChars 按基线比例由字符数估算令牌数（向上取整）
func EstimateChars(chars int) int64 {
	if chars <= 0 {
		return 0
	}
	return int64((chars + CharsPerToken - 1) / CharsPerToken)
}

// Estimator 文本令牌数估算器
type Estimator interface {
	Estimate(text string) int64
}

// Baseline 按 4 字符/令牌估算，也是计费估算使用的规则
type Baseline struct{}

func (Baseline) Estimate(text string) int64 {
	return EstimateChars(utf8.RuneCountInString(text))
}

// Fine 更细致的展示用估算器
// 数字按每 3 位一个令牌，驼峰与下划线分词，非拉丁文字按字素计数
type Fine struct{}

type runeClass int

const (
	classNone runeClass = iota
	classSpace
	classDigit
	classLatin
	classWide
	classSymbol
)

func classify(cluster string) runeClass {
	r, _ := utf8.DecodeRuneInString(cluster)
	switch {
	case unicode.IsSpace(r):
		return classSpace
	case unicode.IsDigit(r):
		return classDigit
	case r < utf8.RuneSelf && unicode.IsLetter(r), unicode.Is(unicode.Latin, r):
		return classLatin
	case unicode.IsLetter(r):
		return classWide
	default:
		return classSymbol
	}
}

func (Fine) Estimate(text string) int64 {
	var (
		total   int64
		class   = classNone
		run     int  // 当前连续段的字素数
		sub     int  // 当前拉丁子词长度
		prevLow bool // 上一个拉丁字母是否为小写
	)

	flushSub := func() {
		if sub > 0 {
			total += int64((sub + 5) / 6)
		}
		sub = 0
	}
	flush := func() {
		switch class {
		case classDigit:
			total += int64((run + 2) / 3)
		case classLatin:
			flushSub()
		case classSpace:
			if run >= 4 {
				total += int64((run + 3) / 4)
			}
		}
		run = 0
	}

	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cluster := g.Str()
		c := classify(cluster)
		if c != class {
			flush()
			class = c
			prevLow = false
		}
		run++

		switch c {
		case classLatin:
			r, _ := utf8.DecodeRuneInString(cluster)
			if unicode.IsUpper(r) && prevLow {
				flushSub()
			}
			prevLow = unicode.IsLower(r)
			sub++
		case classWide:
			total++
		case classSymbol:
			switch {
			case cluster == "_": // 仅作为分词边界
			case utf8.RuneCountInString(cluster) > 1:
				total += 2
			default:
				total++
			}
		}
	}
	flush()

	if total == 0 && text != "" {
		return 1
	}
	return total
}

// Tiktoken 使用 cl100k_base 编码计数，编码不可用时退回 Fine
type Tiktoken struct {
	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback Fine
}

func (t *Tiktoken) Estimate(text string) int64 {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("加载 tiktoken 编码失败，改用启发式估算", "error", err)
			return
		}
		t.enc = enc
	})
	if t.enc == nil {
		return t.fallback.Estimate(text)
	}
	return int64(len(t.enc.Encode(text, nil, nil)))
}

// NewEstimator 按名称返回估算器：baseline、fine 或 tiktoken
func NewEstimator(name string) Estimator {
	switch name {
	case "fine":
		return Fine{}
	case "tiktoken":
		return &Tiktoken{}
	default:
		return Baseline{}
	}
}
