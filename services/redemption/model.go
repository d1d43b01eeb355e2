package redemption

import "time"

const (
	PoolGift  = "gift"
	PoolThink = "think"
)

// ValidPool reports whether pool names a known code pool.
func ValidPool(pool string) bool {
	return pool == PoolGift || pool == PoolThink
}

// RedemptionCode is a single-use credit code. A code belongs to exactly one
// pool and flips to used at most once; used_by and used_at are set in the
// same statement that flips it.
type RedemptionCode struct {
	Code      string     `gorm:"column:code;primaryKey" json:"code"`
	Pool      string     `gorm:"column:pool;not null;index" json:"pool"`
	IsUsed    bool       `gorm:"column:is_used;not null;default:false;index" json:"is_used"`
	UsedBy    *string    `gorm:"column:used_by" json:"used_by,omitempty"`
	UsedAt    *time.Time `gorm:"column:used_at" json:"used_at,omitempty"`
	CreatedBy string     `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (RedemptionCode) TableName() string {
	return "redemption_codes"
}
