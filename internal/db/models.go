// 由 sqlc 自动生成的代码。请勿手动编辑。
// 版本信息:
//   sqlc v1.30.0

package db

// Checkpoint 检查点记录，在变更类轮次开始前创建
type Checkpoint struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	Label       string `json:"label"`
	ProjectPath string `json:"project_path"`
	CreatedAt   int64  `json:"created_at"` // Unix 毫秒
}

// CheckpointFile 检查点中单个文件的快照
type CheckpointFile struct {
	CheckpointID string `json:"checkpoint_id"`
	Path         string `json:"path"`
	Existed      int64  `json:"existed"` // 快照时文件是否存在（0：否，1：是）
	Content      []byte `json:"content"`
	Hash         string `json:"hash"`
	Skipped      string `json:"skipped"` // 未做快照的原因，为空表示已保存内容
}

// Kv 扁平键值记录
type Kv struct {
	Key       string `json:"key"`
	Value     []byte `json:"value"`
	UpdatedAt int64  `json:"updated_at"`
}
