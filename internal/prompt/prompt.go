// Package prompt 构建提交给运行时的系统提示词。
//
// 规则文件、目录列表与工具发现各自尽力而为：任一读取失败只会省略对应的上下文，
// 不会让轮次失败。
package prompt

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/purpose168/chorus/internal/agent"
	"github.com/purpose168/chorus/internal/fsext"
	"github.com/purpose168/chorus/internal/skills"
)

// DefaultRulePaths 按顺序查找的规则文件，支持 doublestar 模式
var DefaultRulePaths = []string{
	".github/copilot-instructions.md",
	".cursorrules",
	".cursor/rules/*.mdc",
	"CLAUDE.md",
	"CLAUDE.local.md",
	"GEMINI.md",
	"AGENTS.md",
	"CHORUS.md",
	"CHORUS.local.md",
}

const (
	maxRuleBytes   = 32 << 10
	listDepth      = 2
	listLimit      = 120
	truncateMarker = "\n…（内容已截断）"
)

// ToolLister 发现已连接的外部工具
type ToolLister interface {
	ListTools(ctx context.Context) ([]string, error)
}

// SizeHint 提供项目规模的非阻塞估算
type SizeHint interface {
	Peek(root string) (files int, tokens int64, ok bool)
}

// Params 构建参数
type Params struct {
	Mode        agent.Mode
	ProjectPath string
	Model       string
	Provider    string
}

// Builder 系统提示词构建器
type Builder struct {
	probe     func(root string) fsext.Probe
	rulePaths []string
	skillDirs []string
	tools     ToolLister
	size      SizeHint
	now       func() time.Time
}

// Option 构建器选项
type Option func(*Builder)

// WithProbe 设置文件系统探测的构造函数
func WithProbe(fn func(root string) fsext.Probe) Option {
	return func(b *Builder) { b.probe = fn }
}

// WithRulePaths 替换规则文件列表
func WithRulePaths(paths []string) Option {
	return func(b *Builder) { b.rulePaths = paths }
}

// WithSkillDirs 替换技能目录列表
func WithSkillDirs(dirs []string) Option {
	return func(b *Builder) { b.skillDirs = dirs }
}

// WithTools 设置工具发现
func WithTools(t ToolLister) Option {
	return func(b *Builder) { b.tools = t }
}

// WithSizeHint 设置项目规模估算
func WithSizeHint(s SizeHint) Option {
	return func(b *Builder) { b.size = s }
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// NewBuilder 创建构建器
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		probe:     func(root string) fsext.Probe { return fsext.OSProbe{Root: root} },
		rulePaths: DefaultRulePaths,
		skillDirs: skills.DefaultDirs,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 生成系统提示词
func (b *Builder) Build(ctx context.Context, p Params) string {
	var sb strings.Builder
	sb.WriteString(basePrompt(p.Mode))

	sb.WriteString("\n\n<env>\n")
	if p.ProjectPath != "" {
		fmt.Fprintf(&sb, "Working directory: %s\n", p.ProjectPath)
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Date: %s\n", b.now().Format("2006-01-02"))
	if p.Model != "" {
		fmt.Fprintf(&sb, "Model: %s (%s)\n", p.Model, p.Provider)
	}
	if b.size != nil && p.ProjectPath != "" {
		if files, tokens, ok := b.size.Peek(p.ProjectPath); ok {
			fmt.Fprintf(&sb, "Project size: %s files, ~%s tokens\n", humanize.Comma(int64(files)), humanize.Comma(tokens))
		}
	}
	sb.WriteString("</env>\n")

	if p.ProjectPath != "" {
		probe := b.probe(p.ProjectPath)
		if listing := b.listing(probe, p.ProjectPath); listing != "" {
			sb.WriteString("\n<project>\n")
			sb.WriteString(listing)
			sb.WriteString("</project>\n")
		}
		if rules := b.rules(probe); rules != "" {
			sb.WriteString("\n<memory>\n")
			sb.WriteString(rules)
			sb.WriteString("</memory>\n")
		}
		if section := skills.PromptSection(skills.Discover(probe, b.skillDirs)); section != "" {
			sb.WriteString("\n")
			sb.WriteString(section)
		}
	}

	if tools := b.toolList(ctx); len(tools) > 0 {
		sb.WriteString("\n<tools>\n")
		for _, t := range tools {
			fmt.Fprintf(&sb, "- %s\n", t)
		}
		sb.WriteString("</tools>\n")
	}
	return sb.String()
}

func basePrompt(mode agent.Mode) string {
	switch mode {
	case agent.ModePlan:
		return "You are a coding assistant in planning mode. Investigate the codebase with read-only tools and produce a concise, numbered implementation plan. Do not modify any files."
	case agent.ModeBuilder:
		return "You are a coding assistant in builder mode. Make the requested changes directly using the available tools, keep edits minimal, and verify your work when possible."
	default:
		return "You are a coding assistant. Answer questions about the codebase accurately and concisely. Use read-only tools when you need more context."
	}
}

// rules 读取规则文件，单个文件失败时跳过
func (b *Builder) rules(probe fsext.Probe) string {
	var sb strings.Builder
	seen := make(map[string]struct{})
	for _, pattern := range b.rulePaths {
		paths := []string{pattern}
		if strings.ContainsAny(pattern, "*?[{") {
			paths = fsext.GlobProbe(probe, pattern)
		}
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			data, err := probe.ReadFile(p)
			if err != nil {
				continue
			}
			content := strings.TrimSpace(string(data))
			if content == "" {
				continue
			}
			if len(content) > maxRuleBytes {
				content = strings.ToValidUTF8(content[:maxRuleBytes], "") + truncateMarker
			}
			fmt.Fprintf(&sb, "# %s\n%s\n\n", p, content)
		}
	}
	return sb.String()
}

// listing 以探测接口浅层列出项目目录
func (b *Builder) listing(probe fsext.Probe, root string) string {
	ig := fsext.NewIgnorer(root)
	var lines []string
	truncated := false

	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		entries, err := probe.ReadDir(dir)
		if err != nil {
			slog.Debug("列出目录失败", "dir", dir, "error", err)
			return
		}
		for _, e := range entries {
			if len(lines) >= listLimit {
				truncated = true
				return
			}
			rel := path.Join(dir, e.Name())
			if ig.ShouldIgnore(root+"/"+rel, e.IsDir()) {
				continue
			}
			indent := strings.Repeat("  ", depth)
			if e.IsDir() {
				lines = append(lines, indent+e.Name()+"/")
				if depth+1 < listDepth {
					walk(rel, depth+1)
				}
				continue
			}
			lines = append(lines, indent+e.Name()+sizeSuffix(e))
		}
	}
	walk(".", 0)

	if len(lines) == 0 {
		return ""
	}
	out := strings.Join(lines, "\n") + "\n"
	if truncated {
		out += fmt.Sprintf("…（仅显示前 %d 项）\n", listLimit)
	}
	return out
}

func sizeSuffix(e fs.DirEntry) string {
	info, err := e.Info()
	if err != nil || info.Size() == 0 {
		return ""
	}
	return " (" + humanize.Bytes(uint64(info.Size())) + ")"
}

func (b *Builder) toolList(ctx context.Context) []string {
	if b.tools == nil {
		return nil
	}
	tools, err := b.tools.ListTools(ctx)
	if err != nil {
		slog.Debug("发现工具失败", "error", err)
		return nil
	}
	return tools
}
