// Package records は分析ジョブレコードの永続化を提供します。
package records

import (
	"errors"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal は終端状態（completed/failed）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound は指定IDのレコードが存在しない場合に返されます。
	ErrNotFound = errors.New("analysis record not found")
	// ErrDuplicateID は既存IDでの作成を試みた場合に返されます。
	ErrDuplicateID = errors.New("analysis record id already exists")
)

// Record は1回のドキュメント分析ジョブの現在状態を表します。
// Result は pending の間のみ nil です。
type Record struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Query     string    `json:"query"`
	Status    Status    `json:"status"`
	Result    *string   `json:"result"`
	CreatedAt time.Time `json:"created_at"`
}
