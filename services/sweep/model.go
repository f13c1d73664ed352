package sweep

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// Job is the execution record of one sweep run.
type Job struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	TaskType    string         `gorm:"column:task_type;type:varchar(100);not null;index" json:"task_type"`
	Status      JobStatus      `gorm:"column:status;type:varchar(20);not null;default:'running'" json:"status"`
	Processed   int            `gorm:"column:processed;not null;default:0" json:"processed"`
	Failed      int            `gorm:"column:failed;not null;default:0" json:"failed"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	StartedAt   time.Time      `gorm:"column:started_at;not null" json:"started_at"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Job) TableName() string {
	return "sweep_jobs"
}

// Progress counts items of a running sweep and carries its metadata.
type Progress struct {
	Processed int
	Failed    int
	Metadata  map[string]any
}

func (p *Progress) ok() { p.Processed++ }

func (p *Progress) fail() { p.Failed++ }

func (p *Progress) set(key string, value any) {
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata[key] = value
}
