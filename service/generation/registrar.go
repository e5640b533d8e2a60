package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"SceneToVideo-server/config"
	"SceneToVideo-server/models"
	"SceneToVideo-server/service/videoapi"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// referenceAttempt 参考视频的两次尝试：原始提示词 -> 审核拒绝 -> 风格化提示词
type referenceAttempt int

const (
	attemptNeutral referenceAttempt = iota
	attemptStylized
	attemptsExhausted
)

func (a referenceAttempt) String() string {
	switch a {
	case attemptNeutral:
		return "neutral"
	case attemptStylized:
		return "stylized"
	}
	return "exhausted"
}

// nextAttempt 只有第一次因审核被拒才换风格化提示词重试
func nextAttempt(current referenceAttempt, err error) referenceAttempt {
	if current == attemptNeutral && IsPolicyRejection(err) {
		return attemptStylized
	}
	return attemptsExhausted
}

func referencePrompt(ch models.Character, attempt referenceAttempt) string {
	if attempt == attemptStylized {
		return fmt.Sprintf("Stylized animated illustration of a fictional character, clearly not a real person. "+
			"The character faces the camera against a plain neutral background and speaks a short neutral line: \"Hello, nice to meet you.\" "+
			"Character design: %s. Steady medium close-up, soft even lighting, no other characters.", ch.Appearance)
	}
	return fmt.Sprintf("The character faces the camera against a plain neutral background and speaks a short neutral line: \"Hello, nice to meet you.\" "+
		"Appearance: %s. Steady medium close-up, soft even lighting, no other people.", ch.Appearance)
}

// Registrar 确保角色拥有平台身份。一个实例对应一次编排运行，
// 同一角色在运行内最多注册一次。
type Registrar struct {
	backend     Backend
	store       Store
	storage     Storage
	fetcher     ImageFetcher
	poller      *Poller
	gen         config.Generation
	model       string
	maxParallel int

	group singleflight.Group
	mu    sync.Mutex
	done  map[string]models.CharacterIdentity
	fails map[string]error
}

func newRegistrar(e *Engine) *Registrar {
	return &Registrar{
		backend:     e.backend,
		store:       e.store,
		storage:     e.storage,
		fetcher:     e.fetcher,
		poller:      e.poller,
		gen:         e.gen,
		model:       e.model,
		maxParallel: e.gen.MaxParallelRegistrations,
		done:        make(map[string]models.CharacterIdentity),
		fails:       make(map[string]error),
	}
}

// EnsureIdentities 并发注册缺失身份的角色，成功后回写到传入的角色上。
// 不会因为一个角色失败而中断其他角色，返回全部失败原因。
func (r *Registrar) EnsureIdentities(ctx context.Context, chars []*models.Character) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	if r.maxParallel > 0 {
		g.SetLimit(r.maxParallel)
	}
	for _, ch := range chars {
		if ch.Registered() {
			continue
		}
		g.Go(func() error {
			if err := r.ensure(ctx, ch); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (r *Registrar) ensure(ctx context.Context, ch *models.Character) error {
	v, err, _ := r.group.Do(ch.ID, func() (interface{}, error) {
		r.mu.Lock()
		identity, ok := r.done[ch.ID]
		failure := r.fails[ch.ID]
		r.mu.Unlock()
		if ok {
			return identity, nil
		}
		if failure != nil {
			return nil, failure
		}

		identity, err := r.register(ctx, *ch)
		r.mu.Lock()
		if err != nil {
			r.fails[ch.ID] = err
		} else {
			r.done[ch.ID] = identity
		}
		r.mu.Unlock()
		return identity, err
	})
	if err != nil {
		return err
	}
	ch.Identity = v.(models.CharacterIdentity)
	return nil
}

// register pending -> generating -> registered | failed
func (r *Registrar) register(ctx context.Context, ch models.Character) (models.CharacterIdentity, error) {
	log := zerolog.Ctx(ctx).With().Str("character_id", ch.ID).Str("character", ch.Name).Logger()
	ctx = log.WithContext(ctx)

	identity := ch.Identity
	identity.Status = models.IdentityStatusGenerating
	identity.Error = ""
	if err := r.store.SaveCharacterIdentity(ctx, ch.ID, identity); err != nil {
		return identity, &RegistrationError{CharacterID: ch.ID, CharacterName: ch.Name, Stage: "persist", Err: err}
	}

	fail := func(stage, reason string, err error) (models.CharacterIdentity, error) {
		regErr := &RegistrationError{CharacterID: ch.ID, CharacterName: ch.Name, Stage: stage, Reason: reason, Err: err}
		identity.Status = models.IdentityStatusFailed
		identity.Error = regErr.Error()
		if ctx.Err() != nil {
			// 被取消不是角色本身的问题，回到 pending 以便下次继续
			identity.Status = models.IdentityStatusPending
		}
		if saveErr := r.store.SaveCharacterIdentity(context.WithoutCancel(ctx), ch.ID, identity); saveErr != nil {
			log.Error().Err(saveErr).Msg("save failed identity state failed")
		}
		log.Error().Err(regErr).Msg("identity registration failed")
		return identity, regErr
	}

	if identity.ReferenceVideoKey == "" && identity.ReferenceVideoUrl == "" {
		task, reason, err := r.referenceVideo(ctx, ch)
		if err != nil {
			return fail("reference video", reason, err)
		}
		identity.ReferenceVideoKey = task.DurableArtifactKey
		identity.ReferenceVideoUrl = task.DurableArtifactUrl
		if err := r.store.SaveCharacterIdentity(ctx, ch.ID, identity); err != nil {
			log.Warn().Err(err).Msg("save reference video failed")
		}
	}

	videoURL, err := r.referenceVideoURL(ctx, identity)
	if err != nil {
		return fail("reference video", "stored reference video could not be signed", err)
	}
	identity.ReferenceVideoUrl = videoURL

	code, err := r.backend.CreateIdentity(ctx, videoURL)
	if err != nil {
		return fail("identity registration", "", err)
	}
	identity.Code = code
	identity.Status = models.IdentityStatusRegistered
	if err := r.store.SaveCharacterIdentity(context.WithoutCancel(ctx), ch.ID, identity); err != nil {
		return identity, &RegistrationError{CharacterID: ch.ID, CharacterName: ch.Name, Stage: "persist",
			Reason: fmt.Sprintf("identity %s registered but not saved", code), Err: err}
	}
	log.Info().Str("code", code).Msg("identity registered")
	return identity, nil
}

// referenceVideoURL 预签名 URL 会过期，有对象 key 时每次注册前重新签名
func (r *Registrar) referenceVideoURL(ctx context.Context, identity models.CharacterIdentity) (string, error) {
	if identity.ReferenceVideoKey == "" {
		return identity.ReferenceVideoUrl, nil
	}
	return r.storage.PresignURL(ctx, identity.ReferenceVideoKey)
}

// referenceVideo 合成并转存参考视频，返回已完成的任务；失败时附带给操作者的处理建议
func (r *Registrar) referenceVideo(ctx context.Context, ch models.Character) (*models.GenerationTask, string, error) {
	img := ch.ReferenceImage()
	if img == "" {
		return nil, "", &ValidationError{Entity: "character", ID: ch.ID, Name: ch.Name, Reason: "no reference image to synthesize a reference video from"}
	}
	ratio, err := probeAspectRatio(ctx, r.fetcher, r.gen.TempDir, img)
	if err != nil {
		return nil, "reference image unreadable", err
	}
	resolution := ResolutionFor(ratio)
	if img, err = r.hostReferenceImage(ctx, ch, img); err != nil {
		return nil, "reference image could not be stored", err
	}

	attempt := attemptNeutral
	for {
		task, err := r.renderReference(ctx, ch, img, resolution, attempt)
		if err == nil {
			return task, "", nil
		}
		next := nextAttempt(attempt, err)
		if next == attemptsExhausted {
			if IsPolicyRejection(err) {
				return nil, "reference video rejected by content policy for both the original and the stylized prompt; " +
					"replace the reference image with a compliant, non-photorealistic one and reset the identity", err
			}
			return nil, "", err
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("attempt", next.String()).Msg("reference video rejected by content policy, retrying stylized")
		attempt = next
	}
}

// hostReferenceImage data URI 形式的参考图先转存，平台只接受 URL
func (r *Registrar) hostReferenceImage(ctx context.Context, ch models.Character, img string) (string, error) {
	if !strings.HasPrefix(img, "data:") {
		return img, nil
	}
	_, url, err := r.storage.UploadBase64(ctx, img, "characters/"+ch.ID, dataURIExt(img))
	if err != nil {
		return "", fmt.Errorf("store reference image: %w", err)
	}
	return url, nil
}

// dataURIExt data:image/png;base64,... -> .png
func dataURIExt(uri string) string {
	header, _, _ := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	mediaType, _, _ := strings.Cut(header, ";")
	switch mediaType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".bin"
}

func (r *Registrar) renderReference(ctx context.Context, ch models.Character, img, resolution string, attempt referenceAttempt) (*models.GenerationTask, error) {
	tier := r.gen.DurationTiers.Short
	taskID, err := r.backend.CreateReferenceVideo(ctx, videoapi.ReferenceVideoRequest{
		Prompt:         referencePrompt(ch, attempt),
		Seconds:        tier,
		Size:           resolution,
		ReferenceImage: img,
	})
	if err != nil {
		return nil, err
	}
	task := &models.GenerationTask{
		ID:           taskID,
		ProjectId:    ch.ProjectId,
		CharacterId:  ch.ID,
		Type:         models.TaskTypeReferenceVideo,
		Status:       models.TaskStatusQueued,
		Model:        r.model,
		Script:       referencePrompt(ch, attempt),
		DurationTier: tier,
		Resolution:   resolution,
	}
	if err := r.store.CreateTask(context.WithoutCancel(ctx), task); err != nil {
		return nil, fmt.Errorf("save reference task %s: %w", taskID, err)
	}
	if err := r.poller.Await(ctx, task, "characters/"+ch.ID); err != nil {
		return nil, err
	}
	return task, nil
}
