package generation

import (
	"strings"
	"testing"

	"SceneToVideo-server/models"
	"SceneToVideo-server/service/videoapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registered(id, name, code string) models.Character {
	return models.Character{
		ID:         id,
		Name:       name,
		Appearance: name + " wears a red coat",
		Identity:   models.CharacterIdentity{Code: code, Status: models.IdentityStatusRegistered},
	}
}

func TestComposeReplacesNamesWithIdentityCodes(t *testing.T) {
	c := &Composer{Resolver: NewNameMatcher(), ShotCeiling: 10, StyleTags: []string{"cinematic"}}
	sc := SceneContext{
		Scene:      models.Scene{ID: "s1", Location: "rooftop"},
		Characters: []models.Character{registered("c1", "Ann", "ann01"), registered("c2", "Anna", "anna02")},
		Style:      []string{"noir"},
	}
	chunk := []models.Shot{
		{ID: "sh1", Duration: 4, ShotSize: "Close-up", Description: "Anna hands Ann a letter", Dialogue: "Anna: Read it.", CameraMovement: "Dolly in"},
		{ID: "sh2", Duration: 12, Description: "The city hums below", Narration: "Ann remembers."},
	}

	script, err := c.Compose(sc, chunk)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"ann01": "Ann wears a red coat", "anna02": "Anna wears a red coat"}, script.CharacterSettings)
	require.Len(t, script.Shots, 2)

	first := script.Shots[0]
	assert.Equal(t, "[Close-up] @anna02 hands @ann01 a letter", first.Action)
	assert.Equal(t, "Dolly in", first.Camera)
	assert.Equal(t, videoapi.Dialogue{Speaker: "anna02", Text: "Anna: Read it."}, first.Dialogue)
	assert.Equal(t, "rooftop", first.Location)
	assert.Equal(t, []string{"cinematic", "noir"}, first.Style)

	second := script.Shots[1]
	assert.Equal(t, "[Medium shot] The city hums below Voice-over: @ann01 remembers.", second.Action)
	assert.Equal(t, "Static", second.Camera)
	assert.Equal(t, videoapi.SpeakerNone, second.Dialogue.Speaker)
	assert.Equal(t, 10.0, second.Duration, "shot duration is capped at the ceiling")

	for _, s := range script.Shots {
		assert.False(t, strings.Contains(s.Action, "Ann "), "plain names must not survive: %s", s.Action)
	}
}

func TestComposeSilentShotHasNoSpeaker(t *testing.T) {
	c := &Composer{Resolver: NewNameMatcher(), ShotCeiling: 10}
	sc := SceneContext{Characters: []models.Character{registered("c1", "Ann", "ann01")}}
	chunk := []models.Shot{
		{ID: "sh1", Duration: 5, Description: "Ann walks to the window", CharacterRefs: models.StringSlice{"c1"}},
		{ID: "sh2", Duration: 5, Description: "Ann turns", Dialogue: "   "},
		{ID: "sh3", Duration: 5, Description: "Ann smiles", Dialogue: "It's late."},
	}

	script, err := c.Compose(sc, chunk)
	require.NoError(t, err)
	require.Len(t, script.Shots, 3)
	assert.Equal(t, videoapi.Dialogue{Speaker: videoapi.SpeakerNone, Text: ""}, script.Shots[0].Dialogue)
	assert.Equal(t, videoapi.Dialogue{Speaker: videoapi.SpeakerNone, Text: ""}, script.Shots[1].Dialogue)
	assert.Equal(t, videoapi.Dialogue{Speaker: "ann01", Text: "It's late."}, script.Shots[2].Dialogue)
}

func TestComposeWithoutCharacters(t *testing.T) {
	c := &Composer{Resolver: NewNameMatcher(), ShotCeiling: 10}
	script, err := c.Compose(SceneContext{Scene: models.Scene{Location: "forest"}}, []models.Shot{{Duration: 5, Description: "Wind in the trees"}})
	require.NoError(t, err)
	assert.Empty(t, script.CharacterSettings)
	assert.Equal(t, videoapi.SpeakerNone, script.Shots[0].Dialogue.Speaker)
}

func TestComposeRejectsUnregisteredCharacter(t *testing.T) {
	c := &Composer{Resolver: NewNameMatcher(), ShotCeiling: 10}
	sc := SceneContext{Characters: []models.Character{{ID: "c1", Name: "Ann", Identity: models.CharacterIdentity{Status: models.IdentityStatusPending}}}}
	_, err := c.Compose(sc, []models.Shot{{Duration: 5, Description: "Ann waits"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registered identity")
}

func TestIdentityRef(t *testing.T) {
	assert.Equal(t, "@abc", IdentityRef("abc"))
}
