package models

import "time"

// 场景生成状态
const (
	SceneStatusPending    = "pending"
	SceneStatusGenerating = "generating"
	SceneStatusCompleted  = "completed"
	SceneStatusFailed     = "failed"
)

type Scene struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId   string    `gorm:"index;type:varchar(64)" json:"projectId"`
	Order       int       `json:"order"`
	Name        string    `json:"name"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Message     string    `json:"message"` // 最近一次失败原因
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Scene) TableName() string {
	return "scene"
}
