package models

import "time"

// 角色身份注册状态
const (
	IdentityStatusPending    = "pending"
	IdentityStatusGenerating = "generating"
	IdentityStatusRegistered = "registered"
	IdentityStatusFailed     = "failed"
)

// CharacterIdentity 平台侧的角色身份。Status 为 registered 后 Code 不再变化。
type CharacterIdentity struct {
	Code              string `gorm:"type:varchar(128)" json:"code"`
	ReferenceVideoKey string `gorm:"type:varchar(255)" json:"referenceVideoKey"`
	ReferenceVideoUrl string `gorm:"type:text" json:"referenceVideoUrl"`
	Status            string `gorm:"type:varchar(32);default:pending" json:"status"`
	Error             string `gorm:"type:text" json:"error"`
}

type Character struct {
	ID              string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId       string            `gorm:"index;type:varchar(64)" json:"projectId"`
	Name            string            `json:"name"`
	Appearance      string            `gorm:"type:text" json:"appearance"`
	ReferenceImages StringSlice       `gorm:"type:json" json:"referenceImages"`
	Identity        CharacterIdentity `gorm:"embedded;embeddedPrefix:identity_" json:"identity"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// CHARACTER 是 MySQL 保留字
func (Character) TableName() string {
	return "project_character"
}

func (c Character) Registered() bool {
	return c.Identity.Status == IdentityStatusRegistered && c.Identity.Code != ""
}

// ReferenceImage 合成参考视频时使用的参考图（取第一张）
func (c Character) ReferenceImage() string {
	for _, img := range c.ReferenceImages {
		if img != "" {
			return img
		}
	}
	return ""
}
