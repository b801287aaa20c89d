// Package skills 发现项目中的 SKILL.md 技能说明，供系统提示词列出。
package skills

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/purpose168/chorus/internal/fsext"
	"gopkg.in/yaml.v3"
)

const (
	FileName             = "SKILL.md"
	maxNameLength        = 64
	maxDescriptionLength = 1024
)

// DefaultDirs 项目内查找技能的目录，每个子目录一个技能
var DefaultDirs = []string{
	".chorus/skills",
	".agents/skills",
	".claude/skills",
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9]+(-[a-zA-Z0-9]+)*$`)

// Skill 一个技能的前置元数据与正文
type Skill struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	License       string            `yaml:"license,omitempty"`
	Compatibility string            `yaml:"compatibility,omitempty"`
	Metadata      map[string]string `yaml:"metadata,omitempty"`
	Instructions  string            `yaml:"-"`
	// Path SKILL.md 相对项目根的路径
	Path string `yaml:"-"`
}

// Validate 检查名称与描述，名称必须与所在目录一致
func (s *Skill) Validate() error {
	var errs []error
	switch {
	case s.Name == "":
		errs = append(errs, errors.New("名称是必填项"))
	case len(s.Name) > maxNameLength:
		errs = append(errs, fmt.Errorf("名称超过%d个字符", maxNameLength))
	case !namePattern.MatchString(s.Name):
		errs = append(errs, errors.New("名称只能由字母数字与单个连字符组成"))
	case s.Path != "" && !strings.EqualFold(path.Base(path.Dir(s.Path)), s.Name):
		errs = append(errs, fmt.Errorf("名称%q必须与目录%q一致", s.Name, path.Base(path.Dir(s.Path))))
	}
	switch {
	case s.Description == "":
		errs = append(errs, errors.New("描述是必填项"))
	case len(s.Description) > maxDescriptionLength:
		errs = append(errs, fmt.Errorf("描述超过%d个字符", maxDescriptionLength))
	}
	return errors.Join(errs...)
}

// Parse 解析 SKILL.md 的内容
func Parse(filePath string, content []byte) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(string(content))
	if err != nil {
		return nil, err
	}
	var skill Skill
	if err := yaml.Unmarshal([]byte(frontmatter), &skill); err != nil {
		return nil, fmt.Errorf("解析前置元数据失败: %w", err)
	}
	skill.Instructions = strings.TrimSpace(body)
	skill.Path = filePath
	return &skill, nil
}

func splitFrontmatter(content string) (frontmatter, body string, err error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	rest, ok := strings.CutPrefix(content, "---\n")
	if !ok {
		return "", "", errors.New("未找到YAML前置元数据")
	}
	before, after, ok := strings.Cut(rest, "\n---")
	if !ok {
		return "", "", errors.New("前置元数据未正确闭合")
	}
	return before, after, nil
}

// Discover 通过探测接口在 dirs 下查找技能，同名技能以先出现者为准
// 无法读取或校验失败的技能被跳过
func Discover(probe fsext.Probe, dirs []string) []*Skill {
	var out []*Skill
	seen := make(map[string]struct{})
	for _, dir := range dirs {
		entries, err := probe.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			p := path.Join(dir, e.Name(), FileName)
			data, err := probe.ReadFile(p)
			if err != nil {
				continue
			}
			skill, err := Parse(p, data)
			if err == nil {
				err = skill.Validate()
			}
			if err != nil {
				slog.Warn("跳过无效技能", "path", p, "error", err)
				continue
			}
			if _, dup := seen[skill.Name]; dup {
				continue
			}
			seen[skill.Name] = struct{}{}
			out = append(out, skill)
		}
	}
	slices.SortFunc(out, func(a, b *Skill) int { return strings.Compare(a.Name, b.Name) })
	return out
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\"", "&quot;", "'", "&apos;")

// PromptSection 生成注入系统提示词的技能列表，没有技能时返回空串
func PromptSection(skills []*Skill) string {
	if len(skills) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<available_skills>\n")
	for _, s := range skills {
		sb.WriteString("  <skill>\n")
		fmt.Fprintf(&sb, "    <name>%s</name>\n", xmlEscaper.Replace(s.Name))
		fmt.Fprintf(&sb, "    <description>%s</description>\n", xmlEscaper.Replace(s.Description))
		fmt.Fprintf(&sb, "    <location>%s</location>\n", xmlEscaper.Replace(s.Path))
		sb.WriteString("  </skill>\n")
	}
	sb.WriteString("</available_skills>\n")
	return sb.String()
}
