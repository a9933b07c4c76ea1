package queue

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/vastra/pkg/logger"
)

// FailedJobRecord persists a job that exhausted its retries, so an operator
// can inspect and replay it.
type FailedJobRecord struct {
	ID       uint      `gorm:"primaryKey;autoIncrement"`
	JobType  string    `gorm:"size:255;not null;index"`
	Payload  string    `gorm:"type:text;not null"`
	Error    string    `gorm:"type:text"`
	Attempts int       `gorm:"not null;default:0"`
	FailedAt time.Time `gorm:"autoCreateTime"`
}

func (FailedJobRecord) TableName() string { return "vastra_failed_jobs" }

var failedJobDB *gorm.DB

// UseDB configures the queue to persist failed jobs. Call once at boot
// after the database connection is up.
func UseDB(db *gorm.DB) {
	failedJobDB = db
	if err := db.AutoMigrate(&FailedJobRecord{}); err != nil {
		logger.Error("queue: migrate failed jobs table", "error", err)
	}
}

func persistFailed(job Job, typeName string, lastErr error, attempts int) {
	if failedJobDB == nil {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		payload = []byte(`{}`)
	}

	record := FailedJobRecord{
		JobType:  typeName,
		Payload:  string(payload),
		Error:    lastErr.Error(),
		Attempts: attempts,
	}
	if err := failedJobDB.Create(&record).Error; err != nil {
		logger.Error("queue: persist failed job", "type", typeName, "error", err)
	}
}
