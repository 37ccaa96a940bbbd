// internal/db/models.go
package db

import "time"

// pending_operations (outbox)
type PendingOperation struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	Table         string    `gorm:"column:table_name;size:32;index"` // products / product_history
	OperationType string    `gorm:"column:operation_type;size:16"`   // insert / update / delete
	RecordID      string    `gorm:"column:record_id;size:36;index"`
	PayloadJSON   string    `gorm:"column:data;type:text"`         // pełny lub częściowy rekord
	Status        string    `gorm:"size:16;index;default:pending"` // pending / dead
	Attempts      int       `gorm:"not null;default:0"`            // nieudane próby push
	LastError     string    `gorm:"type:text"`
	CreatedAt     time.Time `gorm:"autoCreateTime:false;index"`
}

func (PendingOperation) TableName() string { return "pending_operations" }

const (
	OpStatusPending = "pending"
	OpStatusDead    = "dead"
)

// image_cache: jeden wpis na URL, bez wersjonowania
type ImageCacheEntry struct {
	URL         string    `gorm:"primaryKey;column:url"`
	Blob        []byte    `gorm:"type:blob"`
	ContentType string    `gorm:"size:64"`
	CachedAt    time.Time `gorm:"autoCreateTime:false"`
}

func (ImageCacheEntry) TableName() string { return "image_cache" }

// import_files: rejestr przetworzonych eksportów katalogu
type ImportFile struct {
	ImportID    uint   `gorm:"primaryKey;column:import_id"`
	Filename    string `gorm:"index"`
	SHA256      string `gorm:"uniqueIndex"`
	SizeBytes   int64
	Status      int       `gorm:"index"` // 0=pending, 1=done, 2=error
	Products    int       // ile produktów zapisano
	LastError   string    `gorm:"type:text"`
	ReceivedAt  time.Time `gorm:"autoCreateTime"`
	ProcessedAt *time.Time
}

const (
	ImportPending = 0
	ImportDone    = 1
	ImportError   = 2
)

// kv: drobne ustawienia urządzenia (device_id, last_pull_at)
type KV struct {
	K string `gorm:"primaryKey"`
	V string
}
