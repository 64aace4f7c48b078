/**
 * @description
 * Registry database models.
 * Maps to the 'contract_routes' and 'sync_runs' tables in PostgreSQL.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/google/uuid
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContractRoute pins a prediction id to one contract deployment.
type ContractRoute struct {
	PredictionID    string    `gorm:"primaryKey;column:prediction_id" json:"predictionId"`
	Version         string    `gorm:"column:version;not null;index" json:"version"`
	ContractAddress string    `gorm:"column:contract_address" json:"contractAddress"`
	OnchainID       string    `gorm:"column:onchain_id;not null" json:"onchainId"` // base-10 uint256
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName overrides the table name used by ContractRoute to `contract_routes`
func (ContractRoute) TableName() string {
	return "contract_routes"
}

// SyncRun is the audit record of one batch sync.
type SyncRun struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key" json:"id"`
	Trigger       string     `gorm:"column:trigger" json:"trigger"` // "admin", "cli", "drift", "feed"
	StartedAt     time.Time  `gorm:"column:started_at;index" json:"startedAt"`
	FinishedAt    *time.Time `gorm:"column:finished_at" json:"finishedAt"`
	Total         int        `gorm:"column:total" json:"total"`
	Succeeded     int        `gorm:"column:succeeded" json:"succeeded"`
	Failed        int        `gorm:"column:failed" json:"failed"`
	NotRegistered int        `gorm:"column:not_registered" json:"notRegistered"`
	Summary       string     `gorm:"column:summary;type:jsonb" json:"summary"`
}

// TableName overrides the table name used by SyncRun to `sync_runs`
func (SyncRun) TableName() string {
	return "sync_runs"
}

// BeforeCreate ensures a UUID is present
func (r *SyncRun) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}
