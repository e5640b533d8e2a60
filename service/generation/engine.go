package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"SceneToVideo-server/config"
	"SceneToVideo-server/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// 批量生成中单个场景的结果
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

type SceneOutcome struct {
	SceneID   string   `json:"sceneId"`
	SceneName string   `json:"sceneName"`
	Status    string   `json:"status"`
	TaskIDs   []string `json:"taskIds,omitempty"`
	Error     string   `json:"error,omitempty"`
	Err       error    `json:"-"`
}

// Engine 场景视频生成编排入口
type Engine struct {
	gen       config.Generation
	model     string
	backend   Backend
	store     Store
	storage   Storage
	fetcher   ImageFetcher
	resolver  CharacterResolver
	composer  *Composer
	submitter *Submitter
	poller    *Poller
	registry  *PollRegistry
}

type EngineOption func(*Engine)

// WithResolver 替换默认的名字匹配器
func WithResolver(r CharacterResolver) EngineOption {
	return func(e *Engine) { e.resolver = r }
}

func WithImageFetcher(f ImageFetcher) EngineOption {
	return func(e *Engine) { e.fetcher = f }
}

func NewEngine(gen config.Generation, model string, backend Backend, store Store, storage Storage, opts ...EngineOption) *Engine {
	e := &Engine{
		gen:      gen,
		model:    model,
		backend:  backend,
		store:    store,
		storage:  storage,
		fetcher:  &HTTPImageFetcher{},
		resolver: NewNameMatcher(),
		registry: NewPollRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.composer = &Composer{Resolver: e.resolver, ShotCeiling: gen.ShotDurationCeiling, StyleTags: gen.StyleTags}
	e.submitter = &Submitter{backend: backend, store: store, model: model}
	e.poller = &Poller{
		backend:  backend,
		store:    store,
		storage:  storage,
		registry: e.registry,
		interval: gen.PollInterval(),
		attempts: gen.PollAttempts,
	}
	return e
}

func (e *Engine) PollRegistry() *PollRegistry {
	return e.registry
}

// run 一次编排运行，运行内共享身份注册结果
type run struct {
	e         *Engine
	registrar *Registrar
	projects  map[string]*models.Project
}

func (e *Engine) newRun() *run {
	return &run{e: e, registrar: newRegistrar(e), projects: make(map[string]*models.Project)}
}

// GenerateSceneVideo 注册角色身份后提交并等待全部分段任务。
// 任一角色注册失败时不提交任何任务。
func (e *Engine) GenerateSceneVideo(ctx context.Context, scene models.Scene, shots []models.Shot, characters []models.Character) ([]string, error) {
	return e.newRun().generateScene(ctx, scene, shots, characters)
}

// BatchGenerateProject 逐个生成场景，单个场景失败不影响其他场景。
// force 为 false 时跳过已完成的场景。
func (e *Engine) BatchGenerateProject(ctx context.Context, scenes []models.Scene, force bool) []SceneOutcome {
	r := e.newRun()
	outcomes := make([]SceneOutcome, 0, len(scenes))
	for _, scene := range scenes {
		out := SceneOutcome{SceneID: scene.ID, SceneName: scene.Name}
		if !force && scene.Status == models.SceneStatusCompleted {
			out.Status = OutcomeSkipped
			outcomes = append(outcomes, out)
			continue
		}
		ids, err := r.loadAndGenerate(ctx, scene)
		out.TaskIDs = ids
		if err != nil {
			out.Status = OutcomeFailed
			out.Err = err
			out.Error = err.Error()
			zerolog.Ctx(ctx).Error().Err(err).Str("scene_id", scene.ID).Msg("scene generation failed, continuing batch")
		} else {
			out.Status = OutcomeCompleted
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (r *run) loadAndGenerate(ctx context.Context, scene models.Scene) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SceneError{SceneID: scene.ID, SceneName: scene.Name, Stage: StageLoad, Err: err}
	}
	shots, err := r.e.store.ListShots(ctx, scene.ID)
	if err != nil {
		return nil, &SceneError{SceneID: scene.ID, SceneName: scene.Name, Stage: StageLoad, Err: err}
	}
	characters, err := r.e.store.ListCharacters(ctx, scene.ProjectId)
	if err != nil {
		return nil, &SceneError{SceneID: scene.ID, SceneName: scene.Name, Stage: StageLoad, Err: err}
	}
	return r.generateScene(ctx, scene, shots, characters)
}

func (r *run) generateScene(ctx context.Context, scene models.Scene, shots []models.Shot, characters []models.Character) (ids []string, err error) {
	log := zerolog.Ctx(ctx).With().Str("scene_id", scene.ID).Logger()
	ctx = log.WithContext(ctx)

	fail := func(stage string, cause error) error {
		return &SceneError{SceneID: scene.ID, SceneName: scene.Name, Stage: stage, Err: cause}
	}

	r.setSceneStatus(ctx, scene.ID, models.SceneStatusGenerating, "")
	defer func() {
		if err != nil {
			r.setSceneStatus(ctx, scene.ID, models.SceneStatusFailed, err.Error())
		} else {
			r.setSceneStatus(ctx, scene.ID, models.SceneStatusCompleted, "")
		}
	}()

	shots = append([]models.Shot(nil), shots...)
	models.SortShots(shots)
	if err := validateShots(scene, shots); err != nil {
		return nil, fail(StageValidation, err)
	}

	sc, err := r.sceneContext(ctx, scene, characters)
	if err != nil {
		return nil, fail(StageLoad, err)
	}

	// 1. 识别角色并校验素材，在任何平台调用之前失败
	involved := r.pointersTo(sc.Characters, r.e.resolver.Involved(shots, sc.Characters))
	if err := validateCharacters(involved); err != nil {
		return nil, fail(StageValidation, err)
	}

	// 2. 注册缺失的身份（全部成功才继续）
	if err := r.registrar.EnsureIdentities(ctx, involved); err != nil {
		return nil, fail(StageIdentity, err)
	}

	// 3. 分段并组装全部脚本
	chunks := ChunkShots(shots, r.e.gen.ChunkCap())
	plans := make([]chunkPlan, 0, len(chunks))
	for i, chunk := range chunks {
		script, err := r.e.composer.Compose(sc, chunk)
		if err != nil {
			return nil, fail(StageCompose, fmt.Errorf("chunk %d: %w", i, err))
		}
		plans = append(plans, chunkPlan{index: i, shots: chunk, script: script, tier: DurationTier(chunk, r.e.gen)})
	}
	log.Info().Int("shots", len(shots)).Int("chunks", len(plans)).Int("characters", len(involved)).Msg("scene planned")

	// 4. 并行提交
	resolution := ResolutionFor(sc.AspectRatio)
	tasks := make([]*models.GenerationTask, len(plans))
	sg, sctx := errgroup.WithContext(ctx)
	for i, plan := range plans {
		sg.Go(func() error {
			task, err := r.e.submitter.Submit(sctx, scene, plan, resolution)
			if err != nil {
				return err
			}
			tasks[i] = task
			return nil
		})
	}
	submitErr := sg.Wait()
	for _, t := range tasks {
		if t != nil {
			ids = append(ids, t.ID)
		}
	}
	if submitErr != nil {
		return ids, fail(StageSubmit, submitErr)
	}

	// 5. 并行轮询，收集全部失败
	var (
		pg   errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, task := range tasks {
		pg.Go(func() error {
			if err := r.e.poller.Await(ctx, task, "scenes/"+scene.ID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = pg.Wait()
	if len(errs) > 0 {
		return ids, fail(StagePoll, errors.Join(errs...))
	}
	log.Info().Strs("task_ids", ids).Msg("scene generated")
	return ids, nil
}

// sceneContext 复制角色列表，注册结果回写到副本上
func (r *run) sceneContext(ctx context.Context, scene models.Scene, characters []models.Character) (SceneContext, error) {
	sc := SceneContext{
		Scene:      scene,
		Characters: append([]models.Character(nil), characters...),
	}
	if scene.ProjectId == "" {
		return sc, nil
	}
	project, ok := r.projects[scene.ProjectId]
	if !ok {
		p, err := r.e.store.GetProject(ctx, scene.ProjectId)
		if err != nil {
			return sc, fmt.Errorf("load project %s: %w", scene.ProjectId, err)
		}
		project = p
		r.projects[scene.ProjectId] = p
	}
	sc.AspectRatio = project.AspectRatio
	sc.Style = splitTags(project.Style)
	return sc, nil
}

func (r *run) pointersTo(roster []models.Character, involved []models.Character) []*models.Character {
	out := make([]*models.Character, 0, len(involved))
	for _, ch := range involved {
		for i := range roster {
			if roster[i].ID == ch.ID {
				out = append(out, &roster[i])
				break
			}
		}
	}
	return out
}

func (r *run) setSceneStatus(ctx context.Context, sceneID, status, message string) {
	if err := r.e.store.UpdateSceneStatus(context.WithoutCancel(ctx), sceneID, status, message); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("status", status).Msg("update scene status failed")
	}
}

func validateShots(scene models.Scene, shots []models.Shot) error {
	if len(shots) == 0 {
		return &ValidationError{Entity: "scene", ID: scene.ID, Name: scene.Name, Reason: "scene has no shots"}
	}
	for _, s := range shots {
		if s.Duration <= 0 {
			return &ValidationError{Entity: "shot", ID: s.ID, Reason: fmt.Sprintf("duration must be positive, got %.2f", s.Duration)}
		}
	}
	return nil
}

// validateCharacters 未注册的角色必须有参考视频或参考图，且不能处于 failed
func validateCharacters(chars []*models.Character) error {
	var errs []error
	for _, ch := range chars {
		switch {
		case ch.Registered():
		case ch.Identity.Status == models.IdentityStatusFailed:
			errs = append(errs, &ValidationError{Entity: "character", ID: ch.ID, Name: ch.Name,
				Reason: "identity registration previously failed (" + ch.Identity.Error + "); replace the reference image and reset the identity before retrying"})
		case ch.Identity.ReferenceVideoKey == "" && ch.Identity.ReferenceVideoUrl == "" && ch.ReferenceImage() == "":
			errs = append(errs, &ValidationError{Entity: "character", ID: ch.ID, Name: ch.Name,
				Reason: "no reference image or reference video"})
		}
	}
	return errors.Join(errs...)
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
