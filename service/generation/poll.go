package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SceneToVideo-server/models"
	"SceneToVideo-server/service/videoapi"

	"github.com/rs/zerolog"
)

// PollRegistry 正在轮询的任务（taskID -> cancelFunc），供外部取消
type PollRegistry struct {
	mu sync.Mutex
	m  map[string]context.CancelFunc
}

func NewPollRegistry() *PollRegistry {
	return &PollRegistry{m: make(map[string]context.CancelFunc)}
}

func (r *PollRegistry) register(taskID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[taskID] = cancel
}

func (r *PollRegistry) unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, taskID)
}

// Cancel 取消正在轮询的任务，返回是否实际找到
func (r *PollRegistry) Cancel(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.m[taskID]; ok {
		cancel()
		delete(r.m, taskID)
		return true
	}
	return false
}

// Active 当前正在轮询的任务数
func (r *PollRegistry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Poller 固定间隔、有限次数地轮询任务，完成后把产物转存到对象存储
type Poller struct {
	backend  Backend
	store    Store
	storage  Storage
	registry *PollRegistry
	interval time.Duration
	attempts int
}

// Await 轮询直到终态。完成时 task 中的产物字段被更新。
// ctx 被取消时任务记录保持非终态。
func (p *Poller) Await(ctx context.Context, task *models.GenerationTask, folder string) error {
	log := zerolog.Ctx(ctx).With().Str("task_id", task.ID).Logger()

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.registry.register(task.ID, cancel)
	defer p.registry.unregister(task.ID)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.attempts; attempt++ {
		select {
		case <-pollCtx.Done():
			return fmt.Errorf("polling task %s canceled: %w", task.ID, pollCtx.Err())
		case <-ticker.C:
		}

		st, err := p.backend.GetStatus(pollCtx, task.ID)
		if err != nil {
			if errors.Is(err, videoapi.ErrTransient) {
				log.Warn().Err(err).Int("attempt", attempt).Msg("status query failed, polling on")
				continue
			}
			if pollCtx.Err() != nil {
				return fmt.Errorf("polling task %s canceled: %w", task.ID, pollCtx.Err())
			}
			return fmt.Errorf("query task %s: %w", task.ID, err)
		}

		switch st.Status {
		case videoapi.StatusCompleted:
			return p.complete(pollCtx, task, st, folder)
		case videoapi.StatusFailed:
			reason := st.Error.String()
			if reason == "" {
				reason = "backend reported failure without reason"
			}
			p.update(ctx, task, models.TaskUpdate{
				Status:     ptr(models.TaskStatusFailed),
				Error:      ptr(reason),
				FinishedAt: ptr(time.Now()),
			})
			return &TaskFailedError{TaskID: task.ID, Reason: reason, Policy: st.Error.PolicyViolation()}
		case videoapi.StatusProcessing:
			if task.Status != models.TaskStatusProcessing || task.Progress != st.Progress {
				u := models.TaskUpdate{Status: ptr(models.TaskStatusProcessing), Progress: ptr(st.Progress)}
				if task.StartedAt == nil {
					u.StartedAt = ptr(time.Now())
				}
				p.update(ctx, task, u)
			}
		}
	}

	p.update(ctx, task, models.TaskUpdate{
		Status:     ptr(models.TaskStatusTimeout),
		Error:      ptr(fmt.Sprintf("no terminal status after %d polls", p.attempts)),
		FinishedAt: ptr(time.Now()),
	})
	return &TimeoutError{TaskID: task.ID, Attempts: p.attempts}
}

// complete 下载产物并转存，平台 URL 会过期。
// 转存失败时任务记为 failed，并保留平台 URL 供人工取回。
func (p *Poller) complete(ctx context.Context, task *models.GenerationTask, st *videoapi.TaskStatus, folder string) error {
	data, err := p.backend.DownloadArtifact(ctx, task.ID)
	if err != nil {
		return p.rehostFailed(ctx, task, st, fmt.Errorf("download artifact: %w", err))
	}
	key, durable, err := p.storage.Upload(ctx, data, folder, ".mp4")
	if err != nil {
		return p.rehostFailed(ctx, task, st, fmt.Errorf("upload artifact: %w", err))
	}
	p.update(ctx, task, models.TaskUpdate{
		Status:             ptr(models.TaskStatusCompleted),
		Progress:           ptr(100),
		SourceArtifactUrl:  ptr(st.ResultURL),
		DurableArtifactKey: ptr(key),
		DurableArtifactUrl: ptr(durable),
		FinishedAt:         ptr(time.Now()),
	})
	zerolog.Ctx(ctx).Info().Str("task_id", task.ID).Str("object", key).Msg("task completed")
	return nil
}

func (p *Poller) rehostFailed(ctx context.Context, task *models.GenerationTask, st *videoapi.TaskStatus, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("polling task %s canceled: %w", task.ID, ctx.Err())
	}
	reason := "re-host: " + err.Error()
	p.update(ctx, task, models.TaskUpdate{
		Status:            ptr(models.TaskStatusFailed),
		SourceArtifactUrl: ptr(st.ResultURL),
		Error:             ptr(reason),
		FinishedAt:        ptr(time.Now()),
	})
	zerolog.Ctx(ctx).Error().Err(err).Str("task_id", task.ID).Str("source", st.ResultURL).Msg("artifact re-host failed")
	return &TaskFailedError{TaskID: task.ID, Reason: reason}
}

// update 写库失败只记录日志，内存中的记录照常更新
func (p *Poller) update(ctx context.Context, task *models.GenerationTask, u models.TaskUpdate) {
	u.Apply(task)
	if err := p.store.UpdateTask(context.WithoutCancel(ctx), task.ID, u); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("task_id", task.ID).Msg("update task record failed")
	}
}

func ptr[T any](v T) *T {
	return &v
}
