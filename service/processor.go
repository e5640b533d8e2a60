package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"SceneToVideo-server/config"
	"SceneToVideo-server/models"
	"SceneToVideo-server/service/generation"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// SceneSource 处理队列任务时读取场景数据
type SceneSource interface {
	GetScene(ctx context.Context, id string) (*models.Scene, error)
	ListScenes(ctx context.Context, projectID string) ([]models.Scene, error)
	ListShots(ctx context.Context, sceneID string) ([]models.Shot, error)
	ListCharacters(ctx context.Context, projectID string) ([]models.Character, error)
}

// Generator 由 generation.Engine 实现
type Generator interface {
	GenerateSceneVideo(ctx context.Context, scene models.Scene, shots []models.Shot, characters []models.Character) ([]string, error)
	BatchGenerateProject(ctx context.Context, scenes []models.Scene, force bool) []generation.SceneOutcome
}

// ProjectResult project:generate 的执行结果，写入 asynq 任务结果
type ProjectResult struct {
	ProjectID string                    `json:"projectId"`
	Completed int                       `json:"completed"`
	Failed    int                       `json:"failed"`
	Skipped   int                       `json:"skipped"`
	Scenes    []generation.SceneOutcome `json:"scenes"`
}

// Processor 处理队列任务
type Processor struct {
	store  SceneSource
	engine Generator
}

func NewProcessor(store SceneSource, engine Generator) *Processor {
	return &Processor{store: store, engine: engine}
}

func (p *Processor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSceneGenerate, p.HandleSceneTask)
	mux.HandleFunc(TypeProjectGenerate, p.HandleProjectTask)
	return mux
}

// Run 启动任务消费者，ctx 结束时优雅退出
func (p *Processor) Run(ctx context.Context, redis config.Redis, concurrency int) error {
	srv := asynq.NewServer(RedisOpt(redis), asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			"default": 1,
		},
		BaseContext: func() context.Context { return ctx },
	})
	zerolog.Ctx(ctx).Info().Int("concurrency", concurrency).Msg("starting task processor")
	if err := srv.Start(p.Mux()); err != nil {
		return fmt.Errorf("could not run processor: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	zerolog.Ctx(ctx).Info().Msg("task processor stopped")
	return nil
}

// HandleSceneTask 生成单个场景。业务失败不重试
func (p *Processor) HandleSceneTask(ctx context.Context, t *asynq.Task) error {
	var payload ScenePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log := zerolog.Ctx(ctx).With().Str("job", t.Type()).Str("scene_id", payload.SceneID).Logger()
	ctx = log.WithContext(ctx)

	scene, err := p.store.GetScene(ctx, payload.SceneID)
	if err != nil {
		return loadError("scene", payload.SceneID, err)
	}
	shots, err := p.store.ListShots(ctx, scene.ID)
	if err != nil {
		return fmt.Errorf("list shots of scene %s: %w", scene.ID, err)
	}
	characters, err := p.store.ListCharacters(ctx, scene.ProjectId)
	if err != nil {
		return fmt.Errorf("list characters of project %s: %w", scene.ProjectId, err)
	}

	log.Info().Int("shots", len(shots)).Msg("processing scene")
	ids, err := p.engine.GenerateSceneVideo(ctx, *scene, shots, characters)
	if err != nil {
		log.Error().Err(err).Strs("task_ids", ids).Msg("scene generation failed")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	p.writeResult(ctx, t, map[string]interface{}{"sceneId": scene.ID, "taskIds": ids})
	log.Info().Strs("task_ids", ids).Msg("scene completed")
	return nil
}

// HandleProjectTask 批量生成项目下全部场景，单个场景失败不影响其他场景
func (p *Processor) HandleProjectTask(ctx context.Context, t *asynq.Task) error {
	var payload ProjectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log := zerolog.Ctx(ctx).With().Str("job", t.Type()).Str("project_id", payload.ProjectID).Logger()
	ctx = log.WithContext(ctx)

	scenes, err := p.store.ListScenes(ctx, payload.ProjectID)
	if err != nil {
		return fmt.Errorf("list scenes of project %s: %w", payload.ProjectID, err)
	}
	if len(scenes) == 0 {
		return fmt.Errorf("project %s has no scenes: %w", payload.ProjectID, asynq.SkipRetry)
	}

	result := Summarize(payload.ProjectID, p.engine.BatchGenerateProject(ctx, scenes, payload.Force))
	p.writeResult(ctx, t, result)
	log.Info().Int("completed", result.Completed).Int("failed", result.Failed).Int("skipped", result.Skipped).Msg("project batch finished")
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d scenes failed: %w", result.Failed, len(scenes), asynq.SkipRetry)
	}
	return nil
}

func Summarize(projectID string, outcomes []generation.SceneOutcome) ProjectResult {
	r := ProjectResult{ProjectID: projectID, Scenes: outcomes}
	for _, o := range outcomes {
		switch o.Status {
		case generation.OutcomeCompleted:
			r.Completed++
		case generation.OutcomeFailed:
			r.Failed++
		case generation.OutcomeSkipped:
			r.Skipped++
		}
	}
	return r
}

func (p *Processor) writeResult(ctx context.Context, t *asynq.Task, v interface{}) {
	w := t.ResultWriter()
	if w == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("write job result failed")
	}
}

func loadError(entity, id string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%s %s not found: %w", entity, id, asynq.SkipRetry)
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}
