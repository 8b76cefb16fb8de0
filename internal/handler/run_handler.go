package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"distill-go/internal/dto"
	"distill-go/internal/pipeline"
	"distill-go/internal/service"
	"distill-go/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// heartbeatInterval SSE 心跳间隔
const heartbeatInterval = 15 * time.Second

// RunHandler 运行处理器
type RunHandler struct {
	runManager *service.RunManager
	logger     logrus.FieldLogger
}

// NewRunHandler 创建运行处理器
func NewRunHandler(runManager *service.RunManager, logger logrus.FieldLogger) *RunHandler {
	return &RunHandler{runManager: runManager, logger: logger}
}

// StartRun 启动运行
// @Router /api/runs [post]
func (h *RunHandler) StartRun(c *gin.Context) {
	var req dto.StartRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	resp, err := h.runManager.StartRun(&req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOutputBusy):
			utils.Conflict(c, err.Error())
		case errors.Is(err, pipeline.ErrNoSeeds), errors.Is(err, os.ErrNotExist),
			errors.Is(err, utils.ErrPathOutsideRoot):
			utils.BadRequest(c, err.Error())
		default:
			utils.InternalError(c, err.Error())
		}
		return
	}

	utils.SuccessWithMessage(c, "运行已启动", resp)
}

// ListRuns 运行列表
// @Router /api/runs [get]
func (h *RunHandler) ListRuns(c *gin.Context) {
	page, perPage := utils.ParsePage(c)
	runs, total, err := h.runManager.ListRuns(page, perPage)
	if err != nil {
		utils.InternalError(c, "获取运行列表失败")
		return
	}
	utils.PaginatedResponse(c, runs, total, page, perPage)
}

// GetRun 运行详情
// @Router /api/runs/{run_id} [get]
func (h *RunHandler) GetRun(c *gin.Context) {
	info, err := h.runManager.GetRunInfo(c.Param("run_id"))
	if err != nil {
		utils.NotFound(c, err.Error())
		return
	}
	utils.SuccessResponse(c, info)
}

// StopRun 停止运行
// @Router /api/runs/{run_id}/stop [post]
func (h *RunHandler) StopRun(c *gin.Context) {
	runID := c.Param("run_id")
	if err := h.runManager.StopRun(runID); err != nil {
		switch {
		case errors.Is(err, service.ErrRunNotFound):
			utils.NotFound(c, err.Error())
		case errors.Is(err, service.ErrRunFinished):
			utils.Conflict(c, err.Error())
		default:
			utils.InternalError(c, err.Error())
		}
		return
	}
	utils.SuccessWithMessage(c, "运行停止中", gin.H{"run_id": runID})
}

// ListRecords 运行写出的记录
// @Router /api/runs/{run_id}/records [get]
func (h *RunHandler) ListRecords(c *gin.Context) {
	page, perPage := utils.ParsePage(c)
	recs, total, err := h.runManager.ListRecords(c.Param("run_id"), page, perPage)
	if err != nil {
		utils.InternalError(c, "获取运行记录失败")
		return
	}

	items := make([]dto.RunRecordResponse, 0, len(recs))
	for _, r := range recs {
		items = append(items, dto.RunRecordResponse{
			ID:           r.ID,
			RunID:        r.RunID,
			RecordID:     r.RecordID,
			Input:        r.Input,
			Output:       r.Output,
			Requirements: r.Requirements,
			CacheHit:     r.CacheHit,
			CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		})
	}
	utils.PaginatedResponse(c, items, total, page, perPage)
}

// ListSkips 运行的跳过事件
// @Router /api/runs/{run_id}/skips [get]
func (h *RunHandler) ListSkips(c *gin.Context) {
	page, perPage := utils.ParsePage(c)
	events, total, byReason, err := h.runManager.ListSkips(c.Param("run_id"), page, perPage)
	if err != nil {
		utils.InternalError(c, "获取跳过事件失败")
		return
	}

	skips := make([]dto.SkipEventResponse, 0, len(events))
	for _, e := range events {
		skips = append(skips, dto.SkipEventResponse{
			Kind:         e.Kind,
			RequestIndex: e.RequestIndex,
			Step:         e.Step,
			Reason:       e.Reason,
			CacheKey:     e.CacheKey,
			Seed:         e.Seed,
			Requirements: e.Requirements,
			ErrorMessage: e.ErrorMessage,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		})
	}
	utils.SuccessResponse(c, dto.SkipListResponse{
		Success:  true,
		Skips:    skips,
		Total:    total,
		ByReason: byReason,
	})
}

func writeSSE(c *gin.Context, v interface{}) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

// GetProgress SSE 推送运行进度
// @Router /api/runs/{run_id}/progress [get]
func (h *RunHandler) GetProgress(c *gin.Context) {
	runID := c.Param("run_id")

	progressChan, history, done, unsubscribe, err := h.runManager.GetProgress(runID)
	if err != nil {
		utils.NotFound(c, err.Error())
		return
	}
	defer unsubscribe() // 确保断开连接时取消订阅

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c, dto.ProgressEvent{Type: "connected", RunID: runID, Message: "SSE连接已建立"})

	// 先发送历史事件
	for _, event := range history {
		writeSSE(c, event)
		if event.Type == "finished" {
			return
		}
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.WithField("run_id", runID).Debug("SSE 客户端断开连接")
			return
		case <-ticker.C:
			writeSSE(c, dto.ProgressEvent{Type: "heartbeat", RunID: runID})
		case event := <-progressChan:
			writeSSE(c, event)
			if event.Type == "finished" {
				return
			}
		case <-done:
			// finished 事件可能因订阅通道已满被丢弃，补发最终状态
			if info, err := h.runManager.GetRunInfo(runID); err == nil {
				writeSSE(c, dto.ProgressEvent{Type: "finished", RunID: runID, Message: info.Status, Stats: &info.Stats})
			}
			return
		}
	}
}
