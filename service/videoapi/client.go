package videoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"SceneToVideo-server/config"
)

// 平台任务状态（归一化后）
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Client 视频生成平台客户端，凭证随实例传递
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	Retry      RetryPolicy
}

func NewClient(backend config.Backend, gen config.Generation) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(backend.BaseURL, "/"),
		APIKey:     backend.APIKey,
		Model:      backend.Model,
		HTTPClient: &http.Client{Timeout: backend.Timeout()},
		Retry:      RetryPolicy{Attempts: gen.RetryAttempts, Step: gen.RetryStep()},
	}
}

type ReferenceVideoRequest struct {
	Prompt         string
	Seconds        int
	Size           string
	ReferenceImage string
}

type VideoRequest struct {
	Script  Script
	Seconds int
	Size    string
}

type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *TaskError) PolicyViolation() bool {
	return e != nil && IsPolicyViolation(e.Code, e.Message)
}

func (e *TaskError) String() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

// TaskStatus 平台任务的当前状态
type TaskStatus struct {
	ID        string
	Status    string
	Progress  int
	ResultURL string
	Error     *TaskError
}

type createResponse struct {
	ID     string `json:"id"`
	TaskID string `json:"task_id"`
}

func (r createResponse) taskID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.TaskID
}

// CreateReferenceVideo 提交角色参考视频任务
func (c *Client) CreateReferenceVideo(ctx context.Context, req ReferenceVideoRequest) (string, error) {
	body := map[string]interface{}{
		"model":           c.Model,
		"prompt":          req.Prompt,
		"seconds":         strconv.Itoa(req.Seconds),
		"size":            req.Size,
		"input_reference": req.ReferenceImage,
	}
	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/videos", body, &resp); err != nil {
		return "", err
	}
	if resp.taskID() == "" {
		return "", errors.New("create reference video: response missing id")
	}
	return resp.taskID(), nil
}

// CreateIdentity 用参考视频注册角色身份，返回身份码
func (c *Client) CreateIdentity(ctx context.Context, referenceVideoURL string) (string, error) {
	body := map[string]interface{}{
		"model":     c.Model,
		"video_url": referenceVideoURL,
	}
	var resp struct {
		Code     string `json:"code"`
		Username string `json:"username"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/characters", body, &resp); err != nil {
		return "", err
	}
	code := resp.Code
	if code == "" {
		code = resp.Username
	}
	if code == "" {
		return "", errors.New("create identity: response missing code")
	}
	return code, nil
}

// CreateVideo 提交场景分段视频任务
func (c *Client) CreateVideo(ctx context.Context, req VideoRequest) (string, error) {
	if err := req.Script.Validate(); err != nil {
		return "", fmt.Errorf("invalid script: %w", err)
	}
	body := map[string]interface{}{
		"model":   c.Model,
		"script":  req.Script,
		"seconds": strconv.Itoa(req.Seconds),
		"size":    req.Size,
	}
	var resp createResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/videos", body, &resp); err != nil {
		return "", err
	}
	if resp.taskID() == "" {
		return "", errors.New("create video: response missing id")
	}
	return resp.taskID(), nil
}

// GetStatus 查询任务状态
func (c *Client) GetStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var raw struct {
		ID       string     `json:"id"`
		Status   string     `json:"status"`
		Progress float64    `json:"progress"`
		VideoURL string     `json:"video_url"`
		URL      string     `json:"url"`
		Error    *TaskError `json:"error"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/videos/"+url.PathEscape(taskID), nil, &raw); err != nil {
		return nil, err
	}
	st := &TaskStatus{
		ID:        raw.ID,
		Status:    normalizeStatus(raw.Status),
		Progress:  int(raw.Progress),
		ResultURL: raw.VideoURL,
		Error:     raw.Error,
	}
	if st.ResultURL == "" {
		st.ResultURL = raw.URL
	}
	if st.ID == "" {
		st.ID = taskID
	}
	return st, nil
}

// DownloadArtifact 下载任务产物
func (c *Client) DownloadArtifact(ctx context.Context, taskID string) ([]byte, error) {
	var data []byte
	err := c.Retry.retry(ctx, "download", func() error {
		req, err := c.newRequest(ctx, http.MethodGet, "/v1/videos/"+url.PathEscape(taskID)+"/content", nil)
		if err != nil {
			return err
		}
		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return wrapNetworkError(ctx, err)
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return decodeAPIError(res, true)
		}
		data, err = io.ReadAll(res.Body)
		if err != nil {
			return wrapNetworkError(ctx, err)
		}
		return nil
	})
	return data, err
}

func normalizeStatus(s string) string {
	switch strings.ToLower(s) {
	case "completed", "succeeded", "success", "finished":
		return StatusCompleted
	case "failed", "error", "cancelled", "canceled":
		return StatusFailed
	case "in_progress", "processing", "running", "generating":
		return StatusProcessing
	default:
		return StatusQueued
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request failed: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// doJSON 发送请求并解码响应；只有 GET 的 5xx 视为可重试
func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	idempotent := method == http.MethodGet
	return c.Retry.retry(ctx, method+" "+path, func() error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		res, err := c.HTTPClient.Do(req)
		if err != nil {
			return wrapNetworkError(ctx, err)
		}
		defer res.Body.Close()
		if res.StatusCode < 200 || res.StatusCode >= 300 {
			return decodeAPIError(res, idempotent)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response failed: %w", err)
		}
		return nil
	})
}

func decodeAPIError(res *http.Response, idempotent bool) error {
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	code, message := "", strings.TrimSpace(string(b))
	if json.Unmarshal(b, &payload) == nil && (payload.Error.Message != "" || payload.Error.Code != "") {
		code = payload.Error.Code
		if code == "" {
			code = payload.Error.Type
		}
		message = payload.Error.Message
	}
	return newAPIError(res.StatusCode, code, message, idempotent)
}

// wrapNetworkError 上下文取消不可重试，其他网络错误可重试
func wrapNetworkError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
