package videoapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrPolicyRejected 平台内容审核拒绝
	ErrPolicyRejected = errors.New("rejected by content policy")
	// ErrTransient 网络错误、限流或服务端 5xx，可重试
	ErrTransient = errors.New("transient backend error")
)

type errorKind int

const (
	kindFatal errorKind = iota
	kindTransient
	kindPolicy
)

// APIError 平台返回的非 2xx 响应
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	kind       errorKind
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend http %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend http %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrPolicyRejected:
		return e.kind == kindPolicy
	case ErrTransient:
		return e.kind == kindTransient
	}
	return false
}

var policyCodes = map[string]bool{
	"content_policy_violation": true,
	"moderation_blocked":       true,
	"policy_violation":         true,
	"content_filter":           true,
}

// IsPolicyViolation 判断错误码/信息是否属于内容审核拒绝
func IsPolicyViolation(code, message string) bool {
	if policyCodes[strings.ToLower(code)] {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "content policy") || strings.Contains(msg, "moderation")
}

// newAPIError 按状态码归类：429 一律可重试，5xx 只有幂等请求可重试
func newAPIError(status int, code, message string, idempotent bool) *APIError {
	e := &APIError{StatusCode: status, Code: code, Message: message}
	switch {
	case status == http.StatusTooManyRequests:
		e.kind = kindTransient
	case status >= 500 && idempotent:
		e.kind = kindTransient
	case status >= 400 && status < 500 && IsPolicyViolation(code, message):
		e.kind = kindPolicy
	default:
		e.kind = kindFatal
	}
	return e
}
