package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// 生成单个场景视频：POST /v1/api/projects/:project_id/scenes/:scene_id/video
func (h *Handler) GenerateSceneVideo(c *gin.Context) {
	projectID := c.Param("project_id")
	sceneID := c.Param("scene_id")

	scene, err := h.Store.GetScene(c.Request.Context(), sceneID)
	if err != nil {
		respondError(c, err)
		return
	}
	if scene.ProjectId != projectID {
		c.JSON(http.StatusNotFound, gin.H{"error": "scene does not belong to project " + projectID})
		return
	}

	jobID, err := h.Queue.EnqueueScene(c.Request.Context(), scene.ID)
	if err != nil {
		log.Error().Err(err).Str("scene_id", scene.ID).Msg("enqueue scene job failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message": "场景视频生成任务已创建",
		"jobId":   jobID,
		"sceneId": scene.ID,
	})
}

// 批量生成项目下全部场景：POST /v1/api/projects/:project_id/video?force=true
func (h *Handler) GenerateProjectVideo(c *gin.Context) {
	projectID := c.Param("project_id")

	force := false
	if v := c.Query("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid force: " + v})
			return
		}
		force = parsed
	}

	if _, err := h.Store.GetProject(c.Request.Context(), projectID); err != nil {
		respondError(c, err)
		return
	}
	scenes, err := h.Store.ListScenes(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}

	jobID, err := h.Queue.EnqueueProject(c.Request.Context(), projectID, force, len(scenes))
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID).Msg("enqueue project job failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "任务入队失败: " + err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":   "项目视频批量生成任务已创建",
		"jobId":     jobID,
		"projectId": projectID,
		"force":     force,
		"scenes":    len(scenes),
	})
}
