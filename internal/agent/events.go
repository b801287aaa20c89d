package agent

// Event 运行时事件，封闭的和类型
// 处理方使用 type switch 匹配全部变体
type Event interface {
	isEvent()
}

// Thinking 一个思考步骤
type Thinking struct {
	Content string
}

// TextDelta 文本增量
type TextDelta struct {
	Content string
}

// ReasoningDelta 推理内容增量
type ReasoningDelta struct {
	Content string
}

// ToolCallStart 工具调用开始，同一 ID 可能出现两次，第二次携带解析后的参数
type ToolCallStart struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult 工具执行结果
type ToolResult struct {
	ID      string
	Name    string
	Success bool
	Output  string
}

// ToolApprovalRequired 工具调用需要用户审批
type ToolApprovalRequired struct {
	ApprovalID string
	ToolCallID string
	Name       string
	Args       map[string]any
}

// PathApprovalRequired 访问项目外路径需要用户审批
type PathApprovalRequired struct {
	ApprovalID string
	Name       string
	Path       string
}

// IterationComplete 智能体循环完成一次迭代
type IterationComplete struct {
	Iteration int
}

// Usage 运行时报告的权威令牌用量
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// AgentComplete 轮次结束，Usage 可能为空
type AgentComplete struct {
	Usage *Usage
}

// AgentError 轮次以错误结束
type AgentError struct {
	Err error
}

func (Thinking) isEvent()             {}
func (TextDelta) isEvent()            {}
func (ReasoningDelta) isEvent()       {}
func (ToolCallStart) isEvent()        {}
func (ToolResult) isEvent()           {}
func (ToolApprovalRequired) isEvent() {}
func (PathApprovalRequired) isEvent() {}
func (IterationComplete) isEvent()    {}
func (AgentComplete) isEvent()        {}
func (AgentError) isEvent()           {}
