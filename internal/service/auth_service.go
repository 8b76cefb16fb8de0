package service

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"distill-go/internal/config"
	"distill-go/internal/dto"
	"distill-go/internal/utils"
)

// ErrInvalidCredentials 用户名或密码错误
var ErrInvalidCredentials = errors.New("用户名或密码错误")

// AuthService 认证服务，只有配置文件中的管理员一个账户
type AuthService struct {
	jwtManager    *utils.JWTManager
	adminUsername string
	adminHash     string
}

// NewAuthService 创建认证服务
// 配置中的密码可以是明文或 bcrypt 哈希，明文在启动时哈希一次。
func NewAuthService(jwtManager *utils.JWTManager, cfg *config.Config) (*AuthService, error) {
	hash := cfg.Admin.Password
	if !utils.IsBcryptHash(hash) {
		hashed, err := utils.HashPassword(cfg.Admin.Password)
		if err != nil {
			return nil, fmt.Errorf("密码哈希失败: %w", err)
		}
		hash = hashed
	}
	return &AuthService{
		jwtManager:    jwtManager,
		adminUsername: cfg.Admin.Username,
		adminHash:     hash,
	}, nil
}

// Login 管理员登录
func (s *AuthService) Login(req *dto.LoginRequest) (*dto.LoginResponse, error) {
	if subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.adminUsername)) != 1 {
		return nil, ErrInvalidCredentials
	}
	if err := utils.CheckPassword(req.Password, s.adminHash); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := s.jwtManager.GenerateToken(s.adminUsername, utils.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("生成Token失败: %w", err)
	}

	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.jwtManager.ExpireSeconds(),
		User:        dto.UserInfo{Username: s.adminUsername, Role: utils.RoleAdmin},
	}, nil
}

// GetMe 获取当前用户信息
func (s *AuthService) GetMe(username, role string) (*dto.UserInfo, error) {
	if username != s.adminUsername {
		return nil, errors.New("用户不存在")
	}
	return &dto.UserInfo{Username: username, Role: role}, nil
}
