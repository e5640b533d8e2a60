package videoapi

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SpeakerNone 无法确定说话人时的占位
const SpeakerNone = "none"

// Script 提交给平台的结构化分镜脚本
type Script struct {
	CharacterSettings map[string]string `json:"character_settings"` // 身份码 -> 外貌描述
	Shots             []ShotScript      `json:"shots"`
}

type ShotScript struct {
	Action   string   `json:"action"`
	Camera   string   `json:"camera"`
	Dialogue Dialogue `json:"dialogue"`
	Duration float64  `json:"duration"`
	Location string   `json:"location"`
	Style    []string `json:"style"`
}

type Dialogue struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Validate 在序列化前校验脚本结构
func (s Script) Validate() error {
	if len(s.Shots) == 0 {
		return errors.New("script has no shots")
	}
	for code := range s.CharacterSettings {
		if code == "" {
			return errors.New("script character settings contain an empty identity code")
		}
	}
	for i, shot := range s.Shots {
		if shot.Action == "" {
			return fmt.Errorf("script shot %d: empty action", i)
		}
		if shot.Duration <= 0 {
			return fmt.Errorf("script shot %d: duration must be positive", i)
		}
		speaker := shot.Dialogue.Speaker
		if speaker == "" {
			return fmt.Errorf("script shot %d: dialogue speaker missing", i)
		}
		if speaker != SpeakerNone {
			if _, ok := s.CharacterSettings[speaker]; !ok {
				return fmt.Errorf("script shot %d: speaker %q has no character setting", i, speaker)
			}
		}
	}
	return nil
}

// Encode 校验并序列化
func (s Script) Encode() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
