package models

import (
	"time"
)

// Model is one configured LLM. Only active models are dispatched to.
type Model struct {
	ID              uint64 `gorm:"primaryKey;autoIncrement"`
	Name            string `gorm:"type:varchar(100);uniqueIndex;not null"`
	Provider        string `gorm:"type:varchar(20);not null"` // openai / openrouter
	ModelIdentifier string `gorm:"type:varchar(100);not null"`
	Description     string `gorm:"type:text"`
	IsActive        bool   `gorm:"default:false;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Model) TableName() string {
	return "models"
}

// ABTestConfig designates the A/B pair. At most one row is active
// system-wide; operator tooling mutates it, the core only reads.
// Model ids are plain references without FK constraints so configs
// survive model lifecycle changes.
type ABTestConfig struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ModelAID    uint64 `gorm:"not null"`
	ModelBID    uint64 `gorm:"not null"`
	IsActive    bool   `gorm:"default:false;index"`
	Description string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (ABTestConfig) TableName() string {
	return "ab_test_configs"
}
