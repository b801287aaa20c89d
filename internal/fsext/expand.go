package fsext

import (
	"strings"

	"github.com/purpose168/chorus/internal/env"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// Expand 按 shell 规则展开字符串中的 $VAR、${VAR} 与 ~
func Expand(s string, e env.Env) (string, error) {
	if !strings.ContainsAny(s, "$~") {
		return s, nil
	}
	word, err := syntax.NewParser().Document(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	cfg := &expand.Config{
		Env: expand.FuncEnviron(e.Get),
	}
	return expand.Literal(cfg, word)
}
