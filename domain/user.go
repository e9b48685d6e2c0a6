package domain

// User is a telegram chat subscribed to engine notifications.
type User struct {
	ChatID int64 `gorm:"primaryKey"`
}
