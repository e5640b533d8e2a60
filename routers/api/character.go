package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// 查询角色身份状态：GET /v1/api/characters/:character_id/identity
func (h *Handler) GetCharacterIdentity(c *gin.Context) {
	ch, err := h.Store.GetCharacter(c.Request.Context(), c.Param("character_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	h.signIdentity(c.Request.Context(), ch)
	c.JSON(http.StatusOK, gin.H{
		"characterId": ch.ID,
		"name":        ch.Name,
		"identity":    ch.Identity,
		"registered":  ch.Registered(),
	})
}

// 更换参考图后重置失败的身份：POST /v1/api/characters/:character_id/identity/reset
func (h *Handler) ResetCharacterIdentity(c *gin.Context) {
	id := c.Param("character_id")
	if err := h.Store.ResetCharacterIdentity(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	log.Info().Str("character_id", id).Msg("character identity reset to pending")
	c.JSON(http.StatusOK, gin.H{"message": "身份已重置，下次生成时重新注册", "characterId": id})
}
