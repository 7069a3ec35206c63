// Package jobs は分析ジョブのキュー投入とワーカー実行を提供します。
package jobs

const (
	// TaskTypeAnalysis はドキュメント分析ジョブのタスク種別です。
	TaskTypeAnalysis = "analysis:process"

	queueName = "analysis"

	// ブローカーレベルの再配送上限です。ジョブ自体の失敗はリトライせず、
	// 終端状態の書き込みに失敗した場合のみ再配送に委ねます。
	maxDeliveryRetry = 3
)

// TaskPayload はキューを流れるジョブディスクリプタです。
// ワーカーはこれだけでジョブを実行し、レコードを終端状態へ更新できます。
type TaskPayload struct {
	AnalysisID string `json:"analysisId"`
	SourceRef  string `json:"sourceRef"`
	Query      string `json:"query"`
}
