package generation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"SceneToVideo-server/models"
	"SceneToVideo-server/service/videoapi"
)

const (
	defaultShotSize = "Medium shot"
	defaultCamera   = "Static"
)

// Composer 把一个分段组装成平台脚本，角色名一律替换为身份码
type Composer struct {
	Resolver    CharacterResolver
	ShotCeiling float64
	StyleTags   []string
}

// Compose 调用方须保证分段涉及的角色都已注册身份
func (c *Composer) Compose(sc SceneContext, chunk []models.Shot) (videoapi.Script, error) {
	involved := c.Resolver.Involved(chunk, sc.Characters)
	settings := make(map[string]string, len(involved))
	for _, ch := range involved {
		if !ch.Registered() {
			return videoapi.Script{}, fmt.Errorf("character %q (%s) has no registered identity (status %s)", ch.Name, ch.ID, ch.Identity.Status)
		}
		settings[ch.Identity.Code] = ch.Appearance
	}

	replacer := nameReplacer(involved)
	style := append(append([]string{}, c.StyleTags...), sc.Style...)

	shots := make([]videoapi.ShotScript, 0, len(chunk))
	for _, shot := range chunk {
		// 没有台词的镜头不指定说话人，旁白里出现的名字不算
		speaker := videoapi.SpeakerNone
		if strings.TrimSpace(shot.Dialogue) != "" {
			if ch := c.Resolver.Speaker(shot, involved); ch != nil {
				speaker = ch.Identity.Code
			}
		}
		shots = append(shots, videoapi.ShotScript{
			Action:   action(shot, replacer),
			Camera:   orDefault(shot.CameraMovement, defaultCamera),
			Dialogue: videoapi.Dialogue{Speaker: speaker, Text: strings.TrimSpace(shot.Dialogue)},
			Duration: math.Min(shot.Duration, c.ShotCeiling),
			Location: sc.Scene.Location,
			Style:    style,
		})
	}

	script := videoapi.Script{CharacterSettings: settings, Shots: shots}
	if err := script.Validate(); err != nil {
		return videoapi.Script{}, err
	}
	return script, nil
}

// IdentityRef 脚本中引用角色身份的写法
func IdentityRef(code string) string {
	return "@" + code
}

func action(shot models.Shot, replacer *strings.Replacer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", orDefault(shot.ShotSize, defaultShotSize), replacer.Replace(strings.TrimSpace(shot.Description)))
	if n := strings.TrimSpace(shot.Narration); n != "" {
		fmt.Fprintf(&b, " Voice-over: %s", replacer.Replace(n))
	}
	return b.String()
}

// nameReplacer 长名字在前，strings.Replacer 同一位置按参数顺序取第一个匹配
func nameReplacer(chars []models.Character) *strings.Replacer {
	sorted := append([]models.Character{}, chars...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return utf8.RuneCountInString(sorted[i].Name) > utf8.RuneCountInString(sorted[j].Name)
	})
	var pairs []string
	for _, ch := range sorted {
		if ch.Name == "" {
			continue
		}
		pairs = append(pairs, ch.Name, IdentityRef(ch.Identity.Code))
	}
	return strings.NewReplacer(pairs...)
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return def
}
