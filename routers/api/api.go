package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"SceneToVideo-server/config"
	"SceneToVideo-server/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Store HTTP 接口用到的查询
type Store interface {
	GetProject(ctx context.Context, id string) (*models.Project, error)
	GetScene(ctx context.Context, id string) (*models.Scene, error)
	ListScenes(ctx context.Context, projectID string) ([]models.Scene, error)
	ListShots(ctx context.Context, sceneID string) ([]models.Shot, error)
	GetTask(ctx context.Context, id string) (*models.GenerationTask, error)
	ListTasksByScene(ctx context.Context, sceneID string) ([]models.GenerationTask, error)
	GetCharacter(ctx context.Context, id string) (*models.Character, error)
	ResetCharacterIdentity(ctx context.Context, id string) error
}

type Enqueuer interface {
	EnqueueScene(ctx context.Context, sceneID string) (string, error)
	EnqueueProject(ctx context.Context, projectID string, force bool, scenes int) (string, error)
}

type PollCanceler interface {
	Cancel(taskID string) bool
}

// Signer 为对象存储 key 生成新的访问 URL
type Signer interface {
	PresignURL(ctx context.Context, key string) (string, error)
}

type Handler struct {
	Store      Store
	Queue      Enqueuer
	Polls      PollCanceler
	Signer     Signer
	Generation config.Generation
	// WatchInterval WebSocket 推送时查询数据库的间隔
	WatchInterval time.Duration
}

func (h *Handler) watchInterval() time.Duration {
	if h.WatchInterval > 0 {
		return h.WatchInterval
	}
	return time.Second
}

// signTask 库里的产物 URL 可能已过期，有 key 时返回前重新签名
func (h *Handler) signTask(ctx context.Context, t *models.GenerationTask) {
	if h.Signer == nil || t.DurableArtifactKey == "" {
		return
	}
	url, err := h.Signer.PresignURL(ctx, t.DurableArtifactKey)
	if err != nil {
		log.Warn().Err(err).Str("task_id", t.ID).Msg("presign artifact failed")
		return
	}
	t.DurableArtifactUrl = url
}

func (h *Handler) signIdentity(ctx context.Context, ch *models.Character) {
	if h.Signer == nil || ch.Identity.ReferenceVideoKey == "" {
		return
	}
	url, err := h.Signer.PresignURL(ctx, ch.Identity.ReferenceVideoKey)
	if err != nil {
		log.Warn().Err(err).Str("character_id", ch.ID).Msg("presign reference video failed")
		return
	}
	ch.Identity.ReferenceVideoUrl = url
}

func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrIdentityNotFailed):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
