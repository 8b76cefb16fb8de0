package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin 管理员角色
const RoleAdmin = "admin"

// JWTClaims JWT声明
type JWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey  []byte
	algorithm  jwt.SigningMethod
	expireTime time.Duration
}

// NewJWTManager 创建JWT管理器，未知算法回退到 HS256
func NewJWTManager(secretKey string, algorithm string, expireTime time.Duration) *JWTManager {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	return &JWTManager{
		secretKey:  []byte(secretKey),
		algorithm:  method,
		expireTime: expireTime,
	}
}

// GenerateToken 生成Token
func (j *JWTManager) GenerateToken(username, role string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expireTime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(j.algorithm, claims)
	return token.SignedString(j.secretKey)
}

// ValidateToken 验证Token
func (j *JWTManager) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != j.algorithm {
			return nil, errors.New("无效的签名算法")
		}
		return j.secretKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*JWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("无效的Token")
}

// ExpireSeconds Token 有效期（秒）
func (j *JWTManager) ExpireSeconds() int {
	return int(j.expireTime.Seconds())
}
