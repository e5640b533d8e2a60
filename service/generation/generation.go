// Package generation 场景视频生成编排：角色身份注册、镜头分段、脚本组装、任务提交与轮询。
package generation

import (
	"context"

	"SceneToVideo-server/models"
	"SceneToVideo-server/service/videoapi"
)

// Backend 视频生成平台
type Backend interface {
	CreateReferenceVideo(ctx context.Context, req videoapi.ReferenceVideoRequest) (string, error)
	CreateIdentity(ctx context.Context, referenceVideoURL string) (string, error)
	CreateVideo(ctx context.Context, req videoapi.VideoRequest) (string, error)
	GetStatus(ctx context.Context, taskID string) (*videoapi.TaskStatus, error)
	DownloadArtifact(ctx context.Context, taskID string) ([]byte, error)
}

// Store 持久化，更新均为部分字段合并
type Store interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListShots(ctx context.Context, sceneID string) ([]models.Shot, error)
	ListCharacters(ctx context.Context, projectID string) ([]models.Character, error)
	UpdateSceneStatus(ctx context.Context, id, status, message string) error
	SaveCharacterIdentity(ctx context.Context, id string, identity models.CharacterIdentity) error
	CreateTask(ctx context.Context, t *models.GenerationTask) error
	UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error
}

// Storage 对象存储。上传返回对象 key 和预签名 URL；
// URL 会过期，需要长期保存的只有 key，使用前用 PresignURL 重新签名。
type Storage interface {
	Upload(ctx context.Context, data []byte, folder, ext string) (key, url string, err error)
	UploadBase64(ctx context.Context, b64, folder, ext string) (key, url string, err error)
	PresignURL(ctx context.Context, key string) (string, error)
}

// SceneContext 组装脚本所需的场景级信息
type SceneContext struct {
	Scene       models.Scene
	Characters  []models.Character
	Style       []string
	AspectRatio string
}
