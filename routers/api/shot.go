package api

import (
	"net/http"

	"SceneToVideo-server/models"
	"SceneToVideo-server/service/generation"

	"github.com/gin-gonic/gin"
)

type chunkPreview struct {
	Index        int               `json:"index"`
	ShotIds      []string          `json:"shotIds"`
	ShotRanges   models.ShotRanges `json:"shotRanges"`
	Duration     float64           `json:"duration"`
	DurationTier int               `json:"durationTier"`
}

// 获取场景分镜：GET /v1/api/scenes/:scene_id/shots
func (h *Handler) GetSceneShots(c *gin.Context) {
	shots, err := h.Store.ListShots(c.Request.Context(), c.Param("scene_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"shots": shots})
}

// 预览分段结果，不调用生成平台：GET /v1/api/scenes/:scene_id/plan
func (h *Handler) GetScenePlan(c *gin.Context) {
	sceneID := c.Param("scene_id")
	scene, err := h.Store.GetScene(c.Request.Context(), sceneID)
	if err != nil {
		respondError(c, err)
		return
	}
	shots, err := h.Store.ListShots(c.Request.Context(), scene.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	models.SortShots(shots)

	chunks := generation.ChunkShots(shots, h.Generation.ChunkCap())
	previews := make([]chunkPreview, 0, len(chunks))
	for i, chunk := range chunks {
		ranges := generation.ShotRanges(chunk)
		ids := make([]string, 0, len(chunk))
		for _, s := range chunk {
			ids = append(ids, s.ID)
		}
		previews = append(previews, chunkPreview{
			Index:        i,
			ShotIds:      ids,
			ShotRanges:   ranges,
			Duration:     ranges[len(ranges)-1].End,
			DurationTier: generation.DurationTier(chunk, h.Generation),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"sceneId":  scene.ID,
		"capacity": h.Generation.ChunkCap(),
		"chunks":   previews,
	})
}
