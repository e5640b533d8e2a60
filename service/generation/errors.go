package generation

import (
	"errors"
	"fmt"

	"SceneToVideo-server/service/videoapi"
)

// 失败阶段
const (
	StageValidation = "validation"
	StageIdentity   = "identity"
	StageCompose    = "compose"
	StageSubmit     = "submit"
	StagePoll       = "poll"
	StageLoad       = "load"
)

// ValidationError 缺少必要的参考素材，在调用平台之前终止
type ValidationError struct {
	Entity string
	ID     string
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s %q (%s): %s", e.Entity, e.Name, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

// RegistrationError 某个角色身份注册失败
type RegistrationError struct {
	CharacterID   string
	CharacterName string
	Stage         string
	Reason        string
	Err           error
}

func (e *RegistrationError) Error() string {
	msg := fmt.Sprintf("character %q (%s) failed at %s", e.CharacterName, e.CharacterID, e.Stage)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// TaskFailedError 平台任务以 failed 结束，原因原样透出
type TaskFailedError struct {
	TaskID string
	Reason string
	Policy bool
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Reason)
}

func (e *TaskFailedError) Is(target error) bool {
	return target == videoapi.ErrPolicyRejected && e.Policy
}

// TimeoutError 轮询次数用尽
type TimeoutError struct {
	TaskID   string
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %s still running after %d polls", e.TaskID, e.Attempts)
}

// SceneError 场景生成失败，标明场景和阶段
type SceneError struct {
	SceneID   string
	SceneName string
	Stage     string
	Err       error
}

func (e *SceneError) Error() string {
	return fmt.Sprintf("scene %q (%s) failed at %s: %v", e.SceneName, e.SceneID, e.Stage, e.Err)
}

func (e *SceneError) Unwrap() error {
	return e.Err
}

// IsPolicyRejection 同步拒绝或任务以审核原因失败
func IsPolicyRejection(err error) bool {
	return errors.Is(err, videoapi.ErrPolicyRejected)
}
