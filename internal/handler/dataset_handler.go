package handler

import (
	"bytes"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"distill-go/internal/dataset"
	"distill-go/internal/dto"
	"distill-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// DatasetHandler 数据集查看与导出，只允许访问 root 下的文件
type DatasetHandler struct {
	defaultPath string
	root        string
}

// NewDatasetHandler 创建数据集处理器
func NewDatasetHandler(defaultPath, root string) *DatasetHandler {
	return &DatasetHandler{defaultPath: defaultPath, root: root}
}

// path 解析 ?path= 参数，越界时写入 400 并返回 false
func (h *DatasetHandler) path(c *gin.Context) (string, bool) {
	p, err := utils.ResolveUnder(h.root, c.DefaultQuery("path", h.defaultPath))
	if err != nil {
		utils.BadRequest(c, err.Error())
		return "", false
	}
	return p, true
}

// Stats 统计输出文件中的记录数，即追加模式下的下一个编号
// @Router /api/dataset/stats [get]
func (h *DatasetHandler) Stats(c *gin.Context) {
	path, ok := h.path(c)
	if !ok {
		return
	}

	_, statErr := os.Stat(path)
	exists := statErr == nil
	if statErr != nil && !errors.Is(statErr, os.ErrNotExist) {
		utils.InternalError(c, statErr.Error())
		return
	}

	count, err := dataset.CountRecords(path)
	if err != nil {
		utils.InternalError(c, err.Error())
		return
	}

	utils.SuccessResponse(c, dto.DatasetStatsResponse{
		Success: true,
		Path:    path,
		Exists:  exists,
		Records: count,
		NextID:  count,
	})
}

// Records 分页查看数据集记录
// @Router /api/dataset/records [get]
func (h *DatasetHandler) Records(c *gin.Context) {
	path, ok := h.path(c)
	if !ok {
		return
	}
	page, perPage := utils.ParsePage(c)
	offset, limit := utils.GetPaginationParams(page, perPage)

	records, total, err := dataset.ReadRecords(path, offset, limit)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			utils.NotFound(c, "数据集不存在")
			return
		}
		utils.InternalError(c, err.Error())
		return
	}
	if records == nil {
		records = []dto.DatasetRecord{}
	}
	utils.PaginatedResponse(c, records, int64(total), page, perPage)
}

// Export 下载数据集，format 可选 jsonl / csv / turns
// @Router /api/dataset/export [get]
func (h *DatasetHandler) Export(c *gin.Context) {
	path, ok := h.path(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", dataset.FormatJSONL)

	var buf bytes.Buffer
	if _, err := dataset.Export(&buf, path, format); err != nil {
		switch {
		case errors.Is(err, dataset.ErrUnknownFormat):
			utils.BadRequest(c, err.Error())
		case errors.Is(err, os.ErrNotExist):
			utils.NotFound(c, "数据集不存在")
		default:
			utils.InternalError(c, err.Error())
		}
		return
	}

	ext := format
	if ext == dataset.FormatTurns {
		ext = "jsonl"
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	filename := base + "." + ext
	if format == dataset.FormatTurns {
		filename = base + "_turns.jsonl"
	}

	// URL 编码文件名以支持中文和特殊字符
	encodedFilename := url.QueryEscape(filename)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"; filename*=UTF-8''"+encodedFilename)
	c.Data(200, "application/octet-stream", buf.Bytes())
}
