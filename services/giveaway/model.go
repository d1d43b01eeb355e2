package giveaway

import (
	"time"

	"gorm.io/datatypes"
)

// GiveawayRun records one administrator-triggered distribution: who gave,
// how much, and the share denominator the per-recipient amounts were
// computed against.
type GiveawayRun struct {
	RunID          string         `gorm:"column:run_id;primaryKey" json:"run_id"`
	GiverID        string         `gorm:"column:giver_id;not null;index" json:"giver_id"`
	GiverName      string         `gorm:"column:giver_name" json:"giver_name"`
	GiverPhotoURL  string         `gorm:"column:giver_photo_url" json:"giver_photo_url"`
	TotalAmount    float64        `gorm:"column:total_amount;not null" json:"total_amount"`
	TotalShares    int64          `gorm:"column:total_shares;not null" json:"total_shares"`
	RecipientCount int            `gorm:"column:recipient_count;not null" json:"recipient_count"`
	Metadata       datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (GiveawayRun) TableName() string {
	return "giveaway_runs"
}

// GiveawayHistoryEntry is the per-recipient record of a run. Giver fields are
// a denormalized snapshot taken at distribution time, not a live reference.
type GiveawayHistoryEntry struct {
	EntryID        string    `gorm:"column:entry_id;primaryKey" json:"entry_id"`
	RunID          string    `gorm:"column:run_id;not null;index" json:"run_id"`
	RecipientID    string    `gorm:"column:recipient_id;not null;index" json:"recipient_id"`
	GiverID        string    `gorm:"column:giver_id;not null" json:"giver_id"`
	GiverName      string    `gorm:"column:giver_name" json:"giver_name"`
	GiverPhotoURL  string    `gorm:"column:giver_photo_url" json:"giver_photo_url"`
	AmountReceived float64   `gorm:"column:amount_received;not null" json:"amount_received"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (GiveawayHistoryEntry) TableName() string {
	return "giveaway_history_entries"
}
