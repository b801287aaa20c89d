package message

import (
	"fmt"
	"strings"
)

// Attachment 用户随消息附加的文件
type Attachment struct {
	FilePath string
	MimeType string
	Content  []byte
}

// IsText 判断附件是否为文本类型
func (a Attachment) IsText() bool { return strings.HasPrefix(a.MimeType, "text/") }

// IsImage 判断附件是否为图片类型
func (a Attachment) IsImage() bool { return strings.HasPrefix(a.MimeType, "image/") }

// FileContext 将文本附件渲染为发送给运行时的文件上下文，没有文本附件时返回空字符串
func FileContext(attachments []Attachment) string {
	var sb strings.Builder
	for _, a := range attachments {
		if !a.IsText() {
			continue
		}
		if sb.Len() == 0 {
			sb.WriteString("<system_info>以下文件已由用户附加，请在响应中考虑这些文件</system_info>\n")
		}
		if a.FilePath != "" {
			fmt.Fprintf(&sb, "<file path='%s'>\n", a.FilePath)
		} else {
			sb.WriteString("<file>\n")
		}
		sb.Write(a.Content)
		sb.WriteString("\n</file>\n")
	}
	return sb.String()
}
