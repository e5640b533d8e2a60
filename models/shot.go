package models

import (
	"sort"
	"time"
)

type Shot struct {
	ID             string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId      string      `gorm:"type:varchar(64)" json:"projectId"`
	SceneId        string      `gorm:"index;type:varchar(64)" json:"sceneId"`
	Order          int         `json:"order"`
	Duration       float64     `json:"duration"` // 秒
	ShotSize       string      `json:"shotSize"`
	CameraMovement string      `json:"cameraMovement"`
	Description    string      `json:"description"`
	Dialogue       string      `json:"dialogue"`
	Narration      string      `json:"narration"`
	CharacterRefs  StringSlice `gorm:"type:json" json:"characterRefs"` // 显式关联的角色（ID 或名称）
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

func (Shot) TableName() string {
	return "shot"
}

// Text 镜头的全部叙述文本，用于角色识别
func (s Shot) Text() string {
	return s.Description + "\n" + s.Dialogue + "\n" + s.Narration
}

// SortShots 按 order 稳定排序
func SortShots(shots []Shot) {
	sort.SliceStable(shots, func(i, j int) bool {
		return shots[i].Order < shots[j].Order
	})
}
