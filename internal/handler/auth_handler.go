package handler

import (
	"errors"

	"distill-go/internal/dto"
	"distill-go/internal/middleware"
	"distill-go/internal/service"
	"distill-go/internal/utils"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login 管理员登录
// @Summary 管理员登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body dto.LoginRequest true "登录信息"
// @Success 200 {object} utils.Response{data=dto.LoginResponse}
// @Router /api/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	resp, err := h.authService.Login(&req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			utils.Unauthorized(c, err.Error())
			return
		}
		utils.InternalError(c, err.Error())
		return
	}

	utils.SuccessWithMessage(c, "登录成功", resp)
}

// GetMe 获取当前用户信息
// @Router /api/me [get]
func (h *AuthHandler) GetMe(c *gin.Context) {
	username, _ := middleware.GetUsername(c)
	info, err := h.authService.GetMe(username, middleware.GetRole(c))
	if err != nil {
		utils.NotFound(c, err.Error())
		return
	}
	utils.SuccessResponse(c, info)
}
