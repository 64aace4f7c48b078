/**
 * @description
 * Task and achievement confirmations.
 * Records proof of completion per (address, task) for permanent achievements
 * and per (address, task, UTC day) for daily tasks, and keeps the completions
 * counter and users set next to them.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - github.com/go-playground/validator/v10
 *
 * @notes
 * - The confirmation key is written with SET NX, so concurrent duplicates
 *   perform exactly one counter increment.
 * - Counter, users set and key count can still drift (partial writes, daily
 *   key expiry). RecountAchievement repairs the counter and reports the drift.
 */

package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

const (
	completedPrefix = "completed:"
	// recountKeyLimit bounds one recount scan. A truncated scan never resets the counter.
	recountKeyLimit = 200000
)

var taskTypePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// reservedTaskTypes collide with the users-set and stats key namespaces.
var reservedTaskTypes = map[string]bool{"users": true, "stats": true}

type ConfirmTaskRequest struct {
	Address  string `json:"address" validate:"required,eth_addr"`
	TaskType string `json:"taskType" validate:"required,tasktype"`
	TxHash   string `json:"txHash" validate:"required,len=66,startswith=0x,hexadecimal"`
}

type ConfirmTaskResult struct {
	Success          bool            `json:"success"`
	AlreadyConfirmed bool            `json:"alreadyConfirmed,omitempty"`
	Kind             models.TaskKind `json:"kind"`
	Day              string          `json:"day,omitempty"`
}

// RecountReport is operator-facing drift data. Mismatches are data, not errors.
type RecountReport struct {
	TaskType        string   `json:"taskType"`
	KeyCount        int64    `json:"keyCount"`
	SetCount        int64    `json:"setCount"`
	CounterBefore   int64    `json:"counterBefore"`
	CounterAfter    int64    `json:"counterAfter"`
	CounterMismatch bool     `json:"counterMismatch"`
	SetMismatch     bool     `json:"setMismatch"`
	OrphanMembers   []string `json:"orphanMembers,omitempty"`
	MissingMembers  []string `json:"missingMembers,omitempty"`
	Truncated       bool     `json:"truncated,omitempty"`
}

type ResetReport struct {
	TaskType      string          `json:"taskType"`
	Kind          models.TaskKind `json:"kind"`
	CounterBefore int64           `json:"counterBefore"`
	UsersCleared  int64           `json:"usersCleared"`
}

type TaskService struct {
	kv       *store.KV
	validate *validator.Validate
	daily    map[string]bool
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewTaskService(kv *store.KV, dailyTaskTypes []string, m *metrics.Metrics) *TaskService {
	daily := make(map[string]bool, len(dailyTaskTypes))
	for _, t := range dailyTaskTypes {
		daily[strings.TrimSpace(t)] = true
	}
	return &TaskService{
		kv:       kv,
		validate: newValidator(),
		daily:    daily,
		metrics:  m,
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("tasktype", func(fl validator.FieldLevel) bool {
		return validTaskType(fl.Field().String())
	})
	return v
}

func validTaskType(taskType string) bool {
	if !taskTypePattern.MatchString(taskType) || reservedTaskTypes[taskType] {
		return false
	}
	// Task types shaped like addresses would alias confirmation keys.
	return !common.IsHexAddress(taskType)
}

// KindOf reports whether a task type resets daily.
func (s *TaskService) KindOf(taskType string) models.TaskKind {
	if s.daily[taskType] {
		return models.TaskKindDaily
	}
	return models.TaskKindAchievement
}

// ConfirmTask records a completion. A repeated confirmation returns
// AlreadyConfirmed and writes nothing.
func (s *TaskService) ConfirmTask(ctx context.Context, req ConfirmTaskRequest) (*ConfirmTaskResult, error) {
	req.Address = strings.TrimSpace(req.Address)
	req.TaskType = strings.TrimSpace(req.TaskType)
	req.TxHash = strings.TrimSpace(req.TxHash)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	address := models.NormalizeAddress(req.Address)
	txHash := strings.ToLower(req.TxHash)
	kind := s.KindOf(req.TaskType)
	now := s.now().UTC()

	res := &ConfirmTaskResult{Kind: kind}
	var key, statsKey, usersKey string
	var ttl time.Duration
	if kind == models.TaskKindDaily {
		res.Day = now.Format("2006-01-02")
		key = store.DailyTaskKey(address, req.TaskType, res.Day)
		statsKey = store.DailyStatsKey
		usersKey = store.DailyTaskUsersKey(req.TaskType)
		ttl = untilUTCMidnight(now)
	} else {
		key = store.AchievementKey(address, req.TaskType)
		statsKey = store.AchievementStatsKey
		usersKey = store.AchievementUsersKey(req.TaskType)
	}

	written, err := s.kv.SetIfAbsent(ctx, key, completedPrefix+txHash, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to write confirmation: %w", err)
	}
	if !written {
		s.metrics.TaskConfirmed(string(kind), true)
		res.Success = true
		res.AlreadyConfirmed = true
		return res, nil
	}

	_, err = s.kv.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, statsKey, store.CompletionsField(req.TaskType), 1)
		pipe.SAdd(ctx, usersKey, address)
		return nil
	})
	if err != nil {
		// The confirmation key stands; RecountAchievement repairs the counter.
		logger.Error("TaskService: confirmation %s written but counters failed: %v", key, err)
		return nil, fmt.Errorf("failed to update task counters: %w", err)
	}

	s.metrics.TaskConfirmed(string(kind), false)
	res.Success = true
	return res, nil
}

// GetStatus reports whether address completed taskType (today, for daily tasks).
func (s *TaskService) GetStatus(ctx context.Context, address, taskType string) (*models.TaskStatus, error) {
	if !common.IsHexAddress(address) || !strings.HasPrefix(address, "0x") {
		return nil, fmt.Errorf("%w: address must be a 20-byte hex address", ErrValidation)
	}
	if !validTaskType(taskType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}

	address = models.NormalizeAddress(address)
	status := &models.TaskStatus{Address: address, TaskType: taskType, Kind: s.KindOf(taskType)}
	key := store.AchievementKey(address, taskType)
	if status.Kind == models.TaskKindDaily {
		status.Day = s.now().UTC().Format("2006-01-02")
		key = store.DailyTaskKey(address, taskType, status.Day)
	}

	raw, found, err := s.kv.GetString(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return status, nil
	}
	status.Completed = true
	status.TxHash = parseTxHash(raw)
	return status, nil
}

// parseTxHash accepts "completed:<hash>" and the JSON form older tooling wrote.
func parseTxHash(raw string) string {
	if strings.HasPrefix(raw, completedPrefix) {
		return strings.TrimPrefix(raw, completedPrefix)
	}
	var legacy models.TaskStatus
	if err := store.DecodeJSON([]byte(raw), &legacy); err == nil {
		return legacy.TxHash
	}
	return ""
}

// RecountAchievement resets the completions counter to the number of
// confirmation keys and reports counter, set and key counts before the repair.
func (s *TaskService) RecountAchievement(ctx context.Context, taskType string) (*RecountReport, error) {
	if !validTaskType(taskType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	if s.KindOf(taskType) == models.TaskKindDaily {
		return nil, fmt.Errorf("%w: %s is a daily task, recount applies to achievements", ErrValidation, taskType)
	}

	keys, truncated, err := s.kv.ScanKeys(ctx, store.AchievementKeyPattern(taskType), recountKeyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to scan confirmations: %w", err)
	}
	keyed := make(map[string]bool, len(keys))
	for _, key := range keys {
		if addr, ok := confirmationAddress(key, taskType); ok {
			keyed[addr] = true
		}
	}

	members, err := s.kv.SMembers(ctx, store.AchievementUsersKey(taskType))
	if err != nil {
		return nil, fmt.Errorf("failed to read users set: %w", err)
	}
	inSet := make(map[string]bool, len(members))
	for _, m := range members {
		inSet[m] = true
	}

	counter, err := s.counter(ctx, store.AchievementStatsKey, taskType)
	if err != nil {
		return nil, err
	}

	report := &RecountReport{
		TaskType:      taskType,
		KeyCount:      int64(len(keyed)),
		SetCount:      int64(len(members)),
		CounterBefore: counter,
		CounterAfter:  counter,
		Truncated:     truncated,
	}
	for m := range inSet {
		if !keyed[m] {
			report.OrphanMembers = append(report.OrphanMembers, m)
		}
	}
	for addr := range keyed {
		if !inSet[addr] {
			report.MissingMembers = append(report.MissingMembers, addr)
		}
	}
	sort.Strings(report.OrphanMembers)
	sort.Strings(report.MissingMembers)
	report.CounterMismatch = report.CounterBefore != report.KeyCount
	report.SetMismatch = report.SetCount != report.KeyCount || len(report.OrphanMembers) > 0

	if truncated {
		logger.Warn("TaskService: recount of %s stopped at %d keys, counter left at %d", taskType, recountKeyLimit, counter)
		return report, nil
	}

	if report.CounterMismatch {
		if err := s.kv.HSet(ctx, store.AchievementStatsKey, store.CompletionsField(taskType), report.KeyCount); err != nil {
			return nil, fmt.Errorf("failed to reset counter: %w", err)
		}
		report.CounterAfter = report.KeyCount
	}
	if report.CounterMismatch || report.SetMismatch {
		s.metrics.RecountMismatch(taskType)
		logger.Warn("TaskService: recount %s keys=%d set=%d counter=%d->%d",
			taskType, report.KeyCount, report.SetCount, report.CounterBefore, report.CounterAfter)
	}
	return report, nil
}

// ResetStats zeroes the completions counter and optionally clears the users set.
// Confirmation keys are never deleted.
func (s *TaskService) ResetStats(ctx context.Context, taskType string, resetUsersSet bool) (*ResetReport, error) {
	if !validTaskType(taskType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	kind := s.KindOf(taskType)
	statsKey, usersKey := store.AchievementStatsKey, store.AchievementUsersKey(taskType)
	if kind == models.TaskKindDaily {
		statsKey, usersKey = store.DailyStatsKey, store.DailyTaskUsersKey(taskType)
	}

	before, err := s.counter(ctx, statsKey, taskType)
	if err != nil {
		return nil, err
	}
	report := &ResetReport{TaskType: taskType, Kind: kind, CounterBefore: before}

	if err := s.kv.HSet(ctx, statsKey, store.CompletionsField(taskType), 0); err != nil {
		return nil, fmt.Errorf("failed to reset counter: %w", err)
	}
	if resetUsersSet {
		n, err := s.kv.SCard(ctx, usersKey)
		if err != nil {
			return nil, err
		}
		if err := s.kv.Delete(ctx, usersKey); err != nil {
			return nil, fmt.Errorf("failed to clear users set: %w", err)
		}
		report.UsersCleared = n
	}

	logger.Info("TaskService: reset %s stats (counter was %d, cleared %d users)", taskType, before, report.UsersCleared)
	return report, nil
}

func (s *TaskService) counter(ctx context.Context, statsKey, taskType string) (int64, error) {
	raw, found, err := s.kv.HGet(ctx, statsKey, store.CompletionsField(taskType))
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is not an integer: %q", taskType, raw)
	}
	return n, nil
}

// confirmationAddress extracts the address from achievements:<address>:<taskType>.
func confirmationAddress(key, taskType string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != "achievements" || parts[2] != taskType {
		return "", false
	}
	addr := parts[1]
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return "", false
	}
	return strings.ToLower(addr), true
}

func untilUTCMidnight(now time.Time) time.Duration {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return midnight.Sub(now)
}
