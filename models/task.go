package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// 生成任务状态
const (
	TaskStatusQueued     = "queued"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
	// timeout: 轮询次数用尽，区别于平台返回的 failed
	TaskStatusTimeout = "timeout"

	TaskTypeReferenceVideo = "reference_video" // 角色参考视频
	TaskTypeSceneVideo     = "scene_video"     // 场景分段视频
)

// GenerationTask 一次平台视频生成任务。ID 即平台返回的任务 ID。
type GenerationTask struct {
	ID                 string      `gorm:"primaryKey;type:varchar(128)" json:"id"`
	ProjectId          string      `gorm:"type:varchar(64)" json:"projectId"`
	SceneId            string      `gorm:"index;type:varchar(64)" json:"sceneId,omitempty"`
	CharacterId        string      `gorm:"type:varchar(64)" json:"characterId,omitempty"`
	Type               string      `json:"type"`
	Status             string      `json:"status"`
	Progress           int         `json:"progress"`
	Model              string      `json:"model"`
	Script             string      `gorm:"type:text" json:"script"`
	DurationTier       int         `json:"durationTier"`
	Resolution         string      `json:"resolution"`
	ShotIds            StringSlice `gorm:"type:json" json:"shotIds"`
	ShotRanges         ShotRanges  `gorm:"type:json" json:"shotRanges"`
	SourceArtifactUrl  string      `gorm:"type:text" json:"sourceArtifactUrl"`
	DurableArtifactKey string      `gorm:"type:varchar(255)" json:"durableArtifactKey"` // 对象存储 key，URL 读取时重新签名
	DurableArtifactUrl string      `gorm:"type:text" json:"durableArtifactUrl"`
	Error              string      `gorm:"type:text" json:"error"`
	StartedAt          *time.Time  `json:"startedAt"`
	FinishedAt         *time.Time  `json:"finishedAt"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

func (GenerationTask) TableName() string {
	return "task"
}

// IsTerminalTaskStatus 终态任务不再被修改
func IsTerminalTaskStatus(status string) bool {
	switch status {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimeout:
		return true
	}
	return false
}

// ShotRange 镜头在分段视频中的时间区间 [Start, End)
type ShotRange struct {
	ShotId string  `json:"shotId"`
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
}

type ShotRanges []ShotRange

// TaskUpdate 部分字段更新，nil 字段保持不变
type TaskUpdate struct {
	Status             *string
	Progress           *int
	SourceArtifactUrl  *string
	DurableArtifactKey *string
	DurableArtifactUrl *string
	Error              *string
	StartedAt          *time.Time
	FinishedAt         *time.Time
}

func (u TaskUpdate) columns() map[string]interface{} {
	updates := map[string]interface{}{}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.Progress != nil {
		updates["progress"] = *u.Progress
	}
	if u.SourceArtifactUrl != nil {
		updates["source_artifact_url"] = *u.SourceArtifactUrl
	}
	if u.DurableArtifactKey != nil {
		updates["durable_artifact_key"] = *u.DurableArtifactKey
	}
	if u.DurableArtifactUrl != nil {
		updates["durable_artifact_url"] = *u.DurableArtifactUrl
	}
	if u.Error != nil {
		updates["error"] = *u.Error
	}
	if u.StartedAt != nil {
		updates["started_at"] = *u.StartedAt
	}
	if u.FinishedAt != nil {
		updates["finished_at"] = *u.FinishedAt
	}
	return updates
}

// Apply 把更新合并到内存中的任务记录
func (u TaskUpdate) Apply(t *GenerationTask) {
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.SourceArtifactUrl != nil {
		t.SourceArtifactUrl = *u.SourceArtifactUrl
	}
	if u.DurableArtifactKey != nil {
		t.DurableArtifactKey = *u.DurableArtifactKey
	}
	if u.DurableArtifactUrl != nil {
		t.DurableArtifactUrl = *u.DurableArtifactUrl
	}
	if u.Error != nil {
		t.Error = *u.Error
	}
	if u.StartedAt != nil {
		t.StartedAt = u.StartedAt
	}
	if u.FinishedAt != nil {
		t.FinishedAt = u.FinishedAt
	}
}

// StringSlice 以 JSON 存储的字符串列表
type StringSlice []string

// 实现 driver.Valuer 接口: Go Struct -> JSON String (存入数据库)
func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	return string(b), err
}

// 实现 sql.Scanner 接口: JSON String -> Go Struct (从数据库读取)
func (s *StringSlice) Scan(value interface{}) error {
	return scanJSON(value, s)
}

func (r ShotRanges) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]ShotRange(r))
	return string(b), err
}

func (r *ShotRanges) Scan(value interface{}) error {
	return scanJSON(value, r)
}

func scanJSON(value interface{}, dest interface{}) error {
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSON value:", value))
	}
}
