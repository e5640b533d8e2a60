package generation

import (
	"context"
	"fmt"

	"SceneToVideo-server/models"
	"SceneToVideo-server/service/videoapi"

	"github.com/rs/zerolog"
)

// Submitter 提交分段任务，并在轮询之前落库
type Submitter struct {
	backend Backend
	store   Store
	model   string
}

type chunkPlan struct {
	index  int
	shots  []models.Shot
	script videoapi.Script
	tier   int
}

func (s *Submitter) Submit(ctx context.Context, scene models.Scene, plan chunkPlan, resolution string) (*models.GenerationTask, error) {
	encoded, err := plan.script.Encode()
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", plan.index, err)
	}
	taskID, err := s.backend.CreateVideo(ctx, videoapi.VideoRequest{
		Script:  plan.script,
		Seconds: plan.tier,
		Size:    resolution,
	})
	if err != nil {
		return nil, fmt.Errorf("chunk %d: create video: %w", plan.index, err)
	}

	task := &models.GenerationTask{
		ID:           taskID,
		ProjectId:    scene.ProjectId,
		SceneId:      scene.ID,
		Type:         models.TaskTypeSceneVideo,
		Status:       models.TaskStatusQueued,
		Model:        s.model,
		Script:       encoded,
		DurationTier: plan.tier,
		Resolution:   resolution,
		ShotIds:      shotIDs(plan.shots),
		ShotRanges:   ShotRanges(plan.shots),
	}
	if err := s.store.CreateTask(context.WithoutCancel(ctx), task); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("task_id", taskID).Msg("backend task submitted but record not saved")
		return nil, fmt.Errorf("chunk %d: save task %s: %w", plan.index, taskID, err)
	}
	zerolog.Ctx(ctx).Info().Str("task_id", taskID).Int("chunk", plan.index).Int("shots", len(plan.shots)).Int("tier", plan.tier).Msg("chunk submitted")
	return task, nil
}
