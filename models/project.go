package models

import "time"

type Project struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title       string    `json:"title"`
	Style       string    `json:"style"`
	AspectRatio string    `gorm:"type:varchar(16)" json:"aspectRatio"` // 成片画幅，如 16:9 / 9:16
	Status      string    `json:"status"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}
