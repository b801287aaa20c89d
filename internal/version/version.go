package version

import "runtime/debug"

// Version 构建时通过 -ldflags 设置，默认为 devel
var Version = "devel"

// 通过 go install 安装时没有 -ldflags，此时回退到模块版本
func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		Version = v
	}
}
