package generation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"SceneToVideo-server/config"
	"SceneToVideo-server/models"
	"SceneToVideo-server/service/videoapi"
)

// recorder 记录跨 fake 的调用顺序
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) index(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

type fakeBackend struct {
	rec *recorder

	mu            sync.Mutex
	seq           int
	refRequests   []videoapi.ReferenceVideoRequest
	videoRequests []videoapi.VideoRequest
	identityCalls []string
	polls         map[string]int

	// rejectReference 同步拒绝参考视频提交
	rejectReference func(req videoapi.ReferenceVideoRequest) error
	// failTask 任务以 failed 结束时的错误，nil 表示成功
	failTask func(taskID string) *videoapi.TaskError
	// identityErr 注册身份时的错误
	identityErr func(url string) error
	// processingPolls 到达终态前返回 processing 的次数
	processingPolls int
	neverFinish     bool
	// downloadErr 下载产物时的错误
	downloadErr error
}

func newFakeBackend(rec *recorder) *fakeBackend {
	return &fakeBackend{rec: rec, polls: make(map[string]int)}
}

func (b *fakeBackend) CreateReferenceVideo(ctx context.Context, req videoapi.ReferenceVideoRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refRequests = append(b.refRequests, req)
	if b.rejectReference != nil {
		if err := b.rejectReference(req); err != nil {
			return "", err
		}
	}
	b.seq++
	id := fmt.Sprintf("ref-%d", b.seq)
	b.rec.add("submit:%s", id)
	return id, nil
}

func (b *fakeBackend) CreateIdentity(ctx context.Context, url string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.identityCalls = append(b.identityCalls, url)
	if b.identityErr != nil {
		if err := b.identityErr(url); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("code%d", len(b.identityCalls)), nil
}

func (b *fakeBackend) CreateVideo(ctx context.Context, req videoapi.VideoRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.videoRequests = append(b.videoRequests, req)
	b.seq++
	id := fmt.Sprintf("video-%d", b.seq)
	b.rec.add("submit:%s", id)
	return id, nil
}

func (b *fakeBackend) GetStatus(ctx context.Context, taskID string) (*videoapi.TaskStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rec.add("status:%s", taskID)
	b.polls[taskID]++
	if b.neverFinish || b.polls[taskID] <= b.processingPolls {
		return &videoapi.TaskStatus{ID: taskID, Status: videoapi.StatusProcessing, Progress: 10 * b.polls[taskID]}, nil
	}
	if b.failTask != nil {
		if te := b.failTask(taskID); te != nil {
			return &videoapi.TaskStatus{ID: taskID, Status: videoapi.StatusFailed, Error: te}, nil
		}
	}
	return &videoapi.TaskStatus{ID: taskID, Status: videoapi.StatusCompleted, Progress: 100, ResultURL: "https://backend/tmp/" + taskID + ".mp4"}, nil
}

func (b *fakeBackend) DownloadArtifact(ctx context.Context, taskID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}
	return []byte("video-" + taskID), nil
}

func (b *fakeBackend) videoCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.videoRequests)
}

type fakeStore struct {
	rec *recorder

	mu         sync.Mutex
	projects   map[string]models.Project
	scenes     map[string]models.Scene
	shots      map[string][]models.Shot
	characters []models.Character
	tasks      map[string]*models.GenerationTask
	saves      map[string][]string
}

func newFakeStore(rec *recorder) *fakeStore {
	return &fakeStore{
		rec:      rec,
		projects: map[string]models.Project{"p1": {ID: "p1", AspectRatio: "16:9", Style: "warm, film grain"}},
		scenes:   make(map[string]models.Scene),
		shots:    make(map[string][]models.Shot),
		tasks:    make(map[string]*models.GenerationTask),
		saves:    make(map[string][]string),
	}
}

func (s *fakeStore) GetProject(ctx context.Context, id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &p, nil
}

func (s *fakeStore) ListShots(ctx context.Context, sceneID string) ([]models.Shot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Shot(nil), s.shots[sceneID]...), nil
}

func (s *fakeStore) ListCharacters(ctx context.Context, projectID string) ([]models.Character, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Character
	for _, c := range s.characters {
		if c.ProjectId == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateSceneStatus(ctx context.Context, id, status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scene := s.scenes[id]
	scene.ID = id
	scene.Status = status
	scene.Message = message
	s.scenes[id] = scene
	return nil
}

func (s *fakeStore) SaveCharacterIdentity(ctx context.Context, id string, identity models.CharacterIdentity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.characters {
		if s.characters[i].ID == id {
			if s.characters[i].Registered() {
				return models.ErrIdentityImmutable
			}
			s.characters[i].Identity = identity
			s.saves[id] = append(s.saves[id], identity.Status)
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *fakeStore) CreateTask(ctx context.Context, t *models.GenerationTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	s.rec.add("create:%s", t.ID)
	return nil
}

func (s *fakeStore) UpdateTask(ctx context.Context, id string, u models.TaskUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return models.ErrNotFound
	}
	if models.IsTerminalTaskStatus(t.Status) {
		return models.ErrTaskTerminal
	}
	u.Apply(t)
	return nil
}

func (s *fakeStore) task(id string) models.GenerationTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *fakeStore) character(id string) models.Character {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.characters {
		if c.ID == id {
			return c
		}
	}
	return models.Character{}
}

func (s *fakeStore) sceneTasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if t.Type == models.TaskTypeSceneVideo {
			n++
		}
	}
	return n
}

type fakeStorage struct {
	mu       sync.Mutex
	uploads  []string
	presigns []string
	// uploadErr 非 nil 时上传失败
	uploadErr error
}

func (s *fakeStorage) Upload(ctx context.Context, data []byte, folder, ext string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploadErr != nil {
		return "", "", s.uploadErr
	}
	key := folder + "/" + string(data) + ext
	s.uploads = append(s.uploads, key)
	return key, "https://durable/" + key, nil
}

func (s *fakeStorage) UploadBase64(ctx context.Context, b64, folder, ext string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := folder + "/ref" + ext
	s.uploads = append(s.uploads, key)
	return key, "https://durable/" + key, nil
}

func (s *fakeStorage) PresignURL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presigns = append(s.presigns, key)
	return "https://durable/" + key, nil
}

type fakeFetcher struct {
	images map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref string) (io.ReadCloser, error) {
	data, ok := f.images[ref]
	if !ok {
		return nil, fmt.Errorf("no image %s", ref)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testGeneration(t *testing.T) config.Generation {
	return config.Generation{
		MaxTaskDuration:     15,
		SafetyBuffer:        1,
		DurationTiers:       config.DurationTiers{Short: 10, Long: 15},
		ShotDurationCeiling: 10,
		PollIntervalSeconds: 1,
		PollAttempts:        5,
		RetryAttempts:       1,
		StyleTags:           []string{"cinematic"},
		TempDir:             t.TempDir(),
	}
}

type harness struct {
	rec     *recorder
	backend *fakeBackend
	store   *fakeStore
	storage *fakeStorage
	fetcher *fakeFetcher
	engine  *Engine
	gen     config.Generation
}

func newHarness(t *testing.T) *harness {
	rec := &recorder{}
	h := &harness{
		rec:     rec,
		backend: newFakeBackend(rec),
		store:   newFakeStore(rec),
		storage: &fakeStorage{},
		fetcher: &fakeFetcher{images: map[string][]byte{
			"img://landscape": pngBytes(t, 64, 36),
			"img://portrait":  pngBytes(t, 36, 64),
		}},
		gen: testGeneration(t),
	}
	h.engine = NewEngine(h.gen, "test-model", h.backend, h.store, h.storage, WithImageFetcher(h.fetcher))
	h.engine.poller.interval = time.Millisecond
	return h
}

func (h *harness) addCharacter(id, name, image string) models.Character {
	c := models.Character{
		ID:              id,
		ProjectId:       "p1",
		Name:            name,
		Appearance:      "a traveler in a grey coat",
		ReferenceImages: models.StringSlice{image},
		Identity:        models.CharacterIdentity{Status: models.IdentityStatusPending},
	}
	h.store.characters = append(h.store.characters, c)
	return c
}

func (h *harness) addScene(id string, shots ...models.Shot) models.Scene {
	scene := models.Scene{ID: id, ProjectId: "p1", Name: "scene " + id, Location: "harbor", Status: models.SceneStatusPending}
	h.store.scenes[id] = scene
	for i := range shots {
		shots[i].SceneId = id
		if shots[i].ID == "" {
			shots[i].ID = fmt.Sprintf("%s-shot-%d", id, i)
		}
		shots[i].Order = i + 1
	}
	h.store.shots[id] = shots
	return scene
}

func shot(duration float64, description string) models.Shot {
	return models.Shot{Duration: duration, Description: description}
}

func rejectWhen(match string) func(req videoapi.ReferenceVideoRequest) error {
	return func(req videoapi.ReferenceVideoRequest) error {
		if strings.Contains(req.Prompt, match) {
			return fmt.Errorf("backend http 400 (moderation_blocked): %w", videoapi.ErrPolicyRejected)
		}
		return nil
	}
}
