package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SceneToVideo-server/config"
	"SceneToVideo-server/models"
	"SceneToVideo-server/service/generation"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	scenes     []models.Scene
	shots      map[string][]models.Shot
	characters []models.Character
}

func (f *fakeSource) GetScene(ctx context.Context, id string) (*models.Scene, error) {
	for _, s := range f.scenes {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeSource) ListScenes(ctx context.Context, projectID string) ([]models.Scene, error) {
	var out []models.Scene
	for _, s := range f.scenes {
		if s.ProjectId == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSource) ListShots(ctx context.Context, sceneID string) ([]models.Shot, error) {
	return f.shots[sceneID], nil
}

func (f *fakeSource) ListCharacters(ctx context.Context, projectID string) ([]models.Character, error) {
	return f.characters, nil
}

type fakeGenerator struct {
	sceneErr   error
	gotScene   models.Scene
	gotShots   []models.Shot
	gotForce   bool
	gotScenes  []models.Scene
	failScenes map[string]bool
}

func (g *fakeGenerator) GenerateSceneVideo(ctx context.Context, scene models.Scene, shots []models.Shot, characters []models.Character) ([]string, error) {
	g.gotScene, g.gotShots = scene, shots
	if g.sceneErr != nil {
		return nil, g.sceneErr
	}
	return []string{"t1", "t2"}, nil
}

func (g *fakeGenerator) BatchGenerateProject(ctx context.Context, scenes []models.Scene, force bool) []generation.SceneOutcome {
	g.gotScenes, g.gotForce = scenes, force
	var out []generation.SceneOutcome
	for _, s := range scenes {
		o := generation.SceneOutcome{SceneID: s.ID, Status: generation.OutcomeCompleted}
		if g.failScenes[s.ID] {
			o.Status, o.Error = generation.OutcomeFailed, "boom"
		}
		out = append(out, o)
	}
	return out
}

func newFixture() (*fakeSource, *fakeGenerator, *Processor) {
	src := &fakeSource{
		scenes: []models.Scene{{ID: "s1", ProjectId: "p1"}, {ID: "s2", ProjectId: "p1"}},
		shots:  map[string][]models.Shot{"s1": {{ID: "sh1", Duration: 5}}},
	}
	gen := &fakeGenerator{}
	return src, gen, NewProcessor(src, gen)
}

func TestHandleSceneTask(t *testing.T) {
	_, gen, p := newFixture()
	task, err := NewSceneTask("s1", time.Hour)
	require.NoError(t, err)

	require.NoError(t, p.HandleSceneTask(context.Background(), task))
	assert.Equal(t, "s1", gen.gotScene.ID)
	assert.Len(t, gen.gotShots, 1)
}

func TestHandleSceneTaskFailureIsNotRetried(t *testing.T) {
	_, gen, p := newFixture()
	gen.sceneErr = errors.New("identity stage failed")
	task, _ := NewSceneTask("s1", time.Hour)

	err := p.HandleSceneTask(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Contains(t, err.Error(), "identity stage failed")
}

func TestHandleSceneTaskMissingScene(t *testing.T) {
	_, _, p := newFixture()
	task, _ := NewSceneTask("nope", time.Hour)
	assert.True(t, errors.Is(p.HandleSceneTask(context.Background(), task), asynq.SkipRetry))
}

func TestHandleSceneTaskBadPayload(t *testing.T) {
	_, _, p := newFixture()
	err := p.HandleSceneTask(context.Background(), asynq.NewTask(TypeSceneGenerate, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleProjectTask(t *testing.T) {
	_, gen, p := newFixture()
	task, err := NewProjectTask("p1", true, time.Hour)
	require.NoError(t, err)

	require.NoError(t, p.HandleProjectTask(context.Background(), task))
	assert.True(t, gen.gotForce)
	assert.Len(t, gen.gotScenes, 2)

	gen.failScenes = map[string]bool{"s2": true}
	err = p.HandleProjectTask(context.Background(), task)
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	empty, _ := NewProjectTask("p2", false, time.Hour)
	assert.True(t, errors.Is(p.HandleProjectTask(context.Background(), empty), asynq.SkipRetry))
}

func TestTaskPayloads(t *testing.T) {
	task, err := NewProjectTask("p1", true, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, TypeProjectGenerate, task.Type())

	var payload ProjectPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, ProjectPayload{ProjectID: "p1", Force: true}, payload)
}

func TestProjectTimeoutScalesWithScenes(t *testing.T) {
	gen := config.Generation{PollIntervalSeconds: 5, PollAttempts: 120}
	budget := gen.SceneBudget()
	assert.Equal(t, 30*time.Minute, budget)

	assert.Equal(t, budget, ProjectTimeout(budget, 0))
	assert.Equal(t, budget, ProjectTimeout(budget, 1))
	assert.Equal(t, 12*budget, ProjectTimeout(budget, 12))
	assert.Greater(t, ProjectTimeout(budget, 12), 2*time.Hour)
}

func TestSummarize(t *testing.T) {
	r := Summarize("p1", []generation.SceneOutcome{
		{Status: generation.OutcomeCompleted},
		{Status: generation.OutcomeFailed},
		{Status: generation.OutcomeSkipped},
		{Status: generation.OutcomeCompleted},
	})
	assert.Equal(t, 2, r.Completed)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Skipped)
}

func TestObjectName(t *testing.T) {
	name := ObjectName("/scenes/s1/", "mp4")
	assert.Regexp(t, `^scenes/s1/[0-9a-f-]{36}\.mp4$`, name)
	assert.NotEqual(t, name, ObjectName("scenes/s1", ".mp4"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentType(".mp4"))
	assert.Equal(t, "image/jpeg", ContentType("JPG"))
	assert.Equal(t, "image/webp", ContentType(".webp"))
	assert.Equal(t, "application/octet-stream", ContentType(".bin"))
}
