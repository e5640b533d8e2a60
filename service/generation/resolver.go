package generation

import (
	"sort"
	"strings"
	"unicode/utf8"

	"SceneToVideo-server/models"
)

// CharacterResolver 从镜头文本中识别角色
type CharacterResolver interface {
	// Involved 场景中出现的全部角色（去重，按首次出现顺序）
	Involved(shots []models.Shot, roster []models.Character) []models.Character
	// Speaker 镜头台词的说话人，无法确定时返回 nil
	Speaker(shot models.Shot, roster []models.Character) *models.Character
}

// NameMatcher 显式引用优先，其次按名字长度从长到短做子串匹配
type NameMatcher struct {
	// MinSpeakerNameLength 说话人匹配的最短名字长度
	MinSpeakerNameLength int
}

func NewNameMatcher() *NameMatcher {
	return &NameMatcher{MinSpeakerNameLength: 2}
}

func (m *NameMatcher) Involved(shots []models.Shot, roster []models.Character) []models.Character {
	seen := make(map[string]bool)
	var out []models.Character
	add := func(c models.Character) {
		if !seen[c.ID] {
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	for _, shot := range shots {
		for _, ref := range shot.CharacterRefs {
			if c := lookupRef(ref, roster); c != nil {
				add(*c)
			}
		}
		for _, idx := range scanNames(shot.Text(), roster, 1) {
			add(roster[idx])
		}
	}
	return out
}

func (m *NameMatcher) Speaker(shot models.Shot, roster []models.Character) *models.Character {
	for _, ref := range shot.CharacterRefs {
		if c := lookupRef(ref, roster); c != nil {
			return c
		}
	}
	matches := scanNames(shot.Text(), roster, m.MinSpeakerNameLength)
	if len(matches) == 0 {
		return nil
	}
	return &roster[matches[0]]
}

// lookupRef 显式引用可以是角色 ID 或完整名字
func lookupRef(ref string, roster []models.Character) *models.Character {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	for i := range roster {
		if roster[i].ID == ref {
			return &roster[i]
		}
	}
	for i := range roster {
		if roster[i].Name == ref {
			return &roster[i]
		}
	}
	return nil
}

// byNameLength 名字从长到短排序后的 roster 下标
func byNameLength(roster []models.Character) []int {
	idx := make([]int, 0, len(roster))
	for i := range roster {
		idx = append(idx, i)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		la, lb := utf8.RuneCountInString(roster[idx[a]].Name), utf8.RuneCountInString(roster[idx[b]].Name)
		return la > lb
	})
	return idx
}

// scanNames 长名字先匹配，匹配到的片段被遮盖，避免短名字误命中长名字内部
func scanNames(text string, roster []models.Character, minLen int) []int {
	var found []int
	for _, i := range byNameLength(roster) {
		name := roster[i].Name
		if name == "" || utf8.RuneCountInString(name) < minLen {
			continue
		}
		if strings.Contains(text, name) {
			found = append(found, i)
			text = strings.ReplaceAll(text, name, "\x00")
		}
	}
	return found
}
