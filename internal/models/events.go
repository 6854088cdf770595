package models

import "time"

// SubscriptionUpdated публикуется после изменения срока подписки пользователя.
type SubscriptionUpdated struct {
	UserUID            string     `json:"user_id"`
	Email              string     `json:"email"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry"`
	UpdatedBy          string     `json:"updated_by"`
	UpdatedAt          time.Time  `json:"updated_at"`
}
