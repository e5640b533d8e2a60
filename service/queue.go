package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SceneToVideo-server/config"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

const (
	TypeSceneGenerate   = "scene:generate"
	TypeProjectGenerate = "project:generate"
)

type ScenePayload struct {
	SceneID string `json:"scene_id"`
}

type ProjectPayload struct {
	ProjectID string `json:"project_id"`
	Force     bool   `json:"force"`
}

// Queue 生成任务入队
type Queue struct {
	client      *asynq.Client
	sceneBudget time.Duration
}

func RedisOpt(cfg config.Redis) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	}
}

func NewQueue(cfg config.Redis, gen config.Generation) *Queue {
	return &Queue{client: asynq.NewClient(RedisOpt(cfg)), sceneBudget: gen.SceneBudget()}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// ProjectTimeout 批量任务逐个场景执行，超时按场景数放大
func ProjectTimeout(sceneBudget time.Duration, scenes int) time.Duration {
	if scenes < 1 {
		scenes = 1
	}
	return sceneBudget * time.Duration(scenes)
}

// 失败不重试：重跑会重复注册角色身份和提交生成任务
func jobOptions(timeout time.Duration) []asynq.Option {
	return []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(timeout),
		asynq.Retention(24 * time.Hour),
	}
}

func NewSceneTask(sceneID string, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ScenePayload{SceneID: sceneID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(TypeSceneGenerate, payload, jobOptions(timeout)...), nil
}

func NewProjectTask(projectID string, force bool, timeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ProjectPayload{ProjectID: projectID, Force: force})
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	return asynq.NewTask(TypeProjectGenerate, payload, jobOptions(timeout)...), nil
}

// EnqueueScene 返回队列中的 job id
func (q *Queue) EnqueueScene(ctx context.Context, sceneID string) (string, error) {
	task, err := NewSceneTask(sceneID, q.sceneBudget)
	if err != nil {
		return "", err
	}
	return q.enqueue(ctx, task)
}

// EnqueueProject scenes 为项目当前的场景数，用于计算超时
func (q *Queue) EnqueueProject(ctx context.Context, projectID string, force bool, scenes int) (string, error) {
	task, err := NewProjectTask(projectID, force, ProjectTimeout(q.sceneBudget, scenes))
	if err != nil {
		return "", err
	}
	return q.enqueue(ctx, task)
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue failed: %w", err)
	}
	log.Info().Str("type", task.Type()).Str("job_id", info.ID).Dur("timeout", info.Timeout).Msg("job enqueued")
	return info.ID, nil
}
