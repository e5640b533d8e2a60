package api

import (
	"context"
	"net/http"
	"time"

	"SceneToVideo-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// 任务进度 WebSocket 推送：以数据库为来源，状态或进度变化时推送，终态后关闭
func (h *Handler) TaskProgressWebSocket(c *gin.Context) {
	taskID := c.Param("task_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	// 读到错误说明客户端已断开
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	t, err := h.Store.GetTask(ctx, taskID)
	if err != nil {
		_ = conn.WriteJSON(gin.H{"error": "task not found: " + err.Error()})
		return
	}
	h.signTask(ctx, t)
	if err := conn.WriteJSON(t); err != nil || models.IsTerminalTaskStatus(t.Status) {
		return
	}

	ticker := time.NewTicker(h.watchInterval())
	defer ticker.Stop()

	prevStatus, prevProgress := t.Status, t.Progress
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cur, err := h.Store.GetTask(ctx, taskID)
		if err != nil {
			continue
		}
		if cur.Status == prevStatus && cur.Progress == prevProgress {
			continue
		}
		h.signTask(ctx, cur)
		if err := conn.WriteJSON(cur); err != nil {
			return
		}
		prevStatus, prevProgress = cur.Status, cur.Progress
		if models.IsTerminalTaskStatus(cur.Status) {
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, cur.Status))
			return
		}
	}
}

// 查询任务状态：GET /v1/api/tasks/:task_id
func (h *Handler) GetTaskStatus(c *gin.Context) {
	t, err := h.Store.GetTask(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.signTask(c.Request.Context(), t)
	c.JSON(http.StatusOK, gin.H{"task": t})
}

// 场景的全部生成任务：GET /v1/api/scenes/:scene_id/tasks
func (h *Handler) GetSceneTasks(c *gin.Context) {
	tasks, err := h.Store.ListTasksByScene(c.Request.Context(), c.Param("scene_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	for i := range tasks {
		h.signTask(c.Request.Context(), &tasks[i])
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// 停止轮询：DELETE /v1/api/tasks/:task_id/poll
// 平台侧任务不受影响，本地记录保持非终态
func (h *Handler) CancelTaskPoll(c *gin.Context) {
	taskID := c.Param("task_id")
	if !h.Polls.Cancel(taskID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task " + taskID + " is not being polled"})
		return
	}
	log.Info().Str("task_id", taskID).Msg("poll canceled")
	c.JSON(http.StatusOK, gin.H{"message": "轮询已取消", "taskId": taskID})
}
