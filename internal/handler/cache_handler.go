package handler

import (
	"time"

	"distill-go/internal/cache"
	"distill-go/internal/dto"
	"distill-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// CacheHandler 示范缓存查询
type CacheHandler struct {
	store               cache.Store
	defaultRequirements []string
}

// NewCacheHandler 创建缓存处理器
func NewCacheHandler(store cache.Store, defaultRequirements []string) *CacheHandler {
	return &CacheHandler{store: store, defaultRequirements: defaultRequirements}
}

// Lookup 按 key 或 (text, requirements) 查询缓存
// @Router /api/cache/lookup [get]
func (h *CacheHandler) Lookup(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		text := c.Query("text")
		if text == "" {
			utils.BadRequest(c, "需要提供 key 或 text")
			return
		}
		reqs := utils.ParseRequirements(c.Query("requirements"), h.defaultRequirements)
		key = cache.Key(text, reqs)
	}

	demo, ok, err := h.store.Get(c.Request.Context(), key)
	if err != nil {
		utils.InternalError(c, err.Error())
		return
	}

	resp := dto.CacheLookupResponse{Success: true, Key: key, Hit: ok}
	if ok {
		resp.Output = demo.Output
		resp.Requirements = demo.Requirements
		resp.Model = demo.Model
		resp.CreatedAt = demo.CreatedAt.Format(time.RFC3339)
	}
	utils.SuccessResponse(c, resp)
}

// Stats 缓存条目数
// @Router /api/cache/stats [get]
func (h *CacheHandler) Stats(c *gin.Context) {
	data := gin.H{"entries": h.store.Len()}
	if fs, ok := h.store.(*cache.FileStore); ok {
		data["load_report"] = fs.Report()
	}
	utils.SuccessResponse(c, data)
}
