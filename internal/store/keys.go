package store

import "fmt"

// Key layout shared with admin scripts and debug endpoints. Do not rename.
const (
	ActivePredictionsKey = "predictions:active"
	AchievementStatsKey  = "achievements:stats"
	DailyStatsKey        = "daily-tasks:stats"
	LeaderboardKey       = "daily-tasks:leaderboard"
	ClaimantsKey         = "daily-tasks:claimants"
	ClaimedTotalsKey     = "daily-tasks:claimed"
	PriceUpdatesChannel  = "price-history:updates"
	NotificationsKey     = "notifications:pending"

	predictionPrefix = "prediction:"
)

func PredictionKey(id string) string {
	return predictionPrefix + id
}

// PositionKey is a hash with one field per asset.
func PositionKey(user, predictionID string) string {
	return fmt.Sprintf("user-position:%s:%s", user, predictionID)
}

// PositionUsersKey indexes the users holding a position in a prediction.
func PositionUsersKey(predictionID string) string {
	return "position-users:" + predictionID
}

func AchievementKey(address, taskType string) string {
	return fmt.Sprintf("achievements:%s:%s", address, taskType)
}

// AchievementKeyPattern matches every confirmation key of one achievement type.
func AchievementKeyPattern(taskType string) string {
	return fmt.Sprintf("achievements:*:%s", taskType)
}

func AchievementUsersKey(taskType string) string {
	return fmt.Sprintf("achievements:%s:users", taskType)
}

func DailyTaskKey(address, taskType, day string) string {
	return fmt.Sprintf("daily-tasks:%s:%s:%s", address, taskType, day)
}

func DailyTaskUsersKey(taskType string) string {
	return fmt.Sprintf("daily-tasks:%s:users", taskType)
}

// CompletionsField is the per-task counter inside a stats hash.
func CompletionsField(taskType string) string {
	return taskType + ":completions"
}

func PriceHistoryKey(predictionID string) string {
	return "price-history:" + predictionID
}
