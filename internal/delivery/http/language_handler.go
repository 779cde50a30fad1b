package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/alsit/internal/domain"
)

// JudgePool is the read-only view of the dispatcher used by the HTTP surface.
type JudgePool interface {
	Capacity() map[domain.Language]int
	Busy() map[domain.Language]int
	InFlight() int64
}

// LanguageHandler handles language listing requests.
type LanguageHandler struct {
	judges JudgePool
}

// NewLanguageHandler creates a new LanguageHandler.
func NewLanguageHandler(judges JudgePool) *LanguageHandler {
	return &LanguageHandler{judges: judges}
}

// List handles GET /api/v1/languages
func (h *LanguageHandler) List(c *gin.Context) {
	capacity := h.judges.Capacity()

	languages := make([]domain.LanguageInfo, 0, len(domain.Languages()))
	for _, lang := range domain.Languages() {
		languages = append(languages, domain.LanguageInfo{
			Name:      lang.String(),
			Extension: lang.Extension(),
			Judges:    capacity[lang],
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"languages": languages,
	})
}
