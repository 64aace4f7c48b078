package models

// TaskKind separates permanent achievements from tasks that reset daily.
type TaskKind string

const (
	TaskKindAchievement TaskKind = "achievement"
	TaskKindDaily       TaskKind = "daily"
)

// TaskStatus is the stored proof of completion for one (address, task[, day]).
type TaskStatus struct {
	Address   string   `json:"address"`
	TaskType  string   `json:"taskType"`
	Kind      TaskKind `json:"kind"`
	Day       string   `json:"day,omitempty"` // YYYY-MM-DD, daily tasks only
	Completed bool     `json:"completed"`
	TxHash    string   `json:"txHash,omitempty"`
}
