package routers

import (
	"net/http"

	"SceneToVideo-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter(h *api.Handler) *gin.Engine {
	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects/:project_id/video", h.GenerateProjectVideo)
		v1.POST("/projects/:project_id/scenes/:scene_id/video", h.GenerateSceneVideo)
		v1.GET("/scenes/:scene_id/shots", h.GetSceneShots)
		v1.GET("/scenes/:scene_id/plan", h.GetScenePlan)
		v1.GET("/scenes/:scene_id/tasks", h.GetSceneTasks)
		v1.GET("/tasks/:task_id", h.GetTaskStatus)
		v1.DELETE("/tasks/:task_id/poll", h.CancelTaskPoll)
		v1.GET("/characters/:character_id/identity", h.GetCharacterIdentity)
		v1.POST("/characters/:character_id/identity/reset", h.ResetCharacterIdentity)
	}
	r.GET("/tasks/:task_id/wss", h.TaskProgressWebSocket)
	return r
}
