package account

import "time"

// Account is the per-user economic state: the credit balance plus the
// cumulative redeemed-code counters used as distribution weights. Counters
// only ever increase; credits move both ways but are never driven negative.
type Account struct {
	ID                 string    `gorm:"column:account_id;primaryKey"`
	DisplayName        string    `gorm:"column:display_name"`
	Email              string    `gorm:"column:email"`
	PhotoURL           string    `gorm:"column:photo_url"`
	IsAdmin            bool      `gorm:"column:is_admin;default:false"`
	Credits            float64   `gorm:"column:credits;not null;default:0"`
	RedeemedGiftCodes  int64     `gorm:"column:redeemed_gift_codes;not null;default:0"`
	RedeemedThinkCodes int64     `gorm:"column:redeemed_think_codes;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Account) TableName() string {
	return "accounts"
}

// Balance is the read projection returned to the presentation layer.
type Balance struct {
	AccountID          string    `json:"account_id"`
	Credits            float64   `json:"credits"`
	RedeemedGiftCodes  int64     `json:"redeemed_gift_codes"`
	RedeemedThinkCodes int64     `json:"redeemed_think_codes"`
	UpdatedAt          time.Time `json:"updated_at"`
}
