package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate        *validator.Validate
	bindingValidate *validator.Validate
)

// InitValidator 初始化验证器
func InitValidator() {
	validate = validator.New()

	// 注册自定义验证函数
	validate.RegisterValidation("nonblank", validateNonBlank)
}

// GetValidator 获取验证器实例
func GetValidator() *validator.Validate {
	if validate == nil {
		InitValidator()
	}
	return validate
}

// validateNonBlank 字符串去掉空白后不能为空
func validateNonBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateStruct 验证结构体
func ValidateStruct(s interface{}) error {
	v := GetValidator()
	if err := v.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidateBinding 按 gin 的 binding 标签验证结构体，供命令行复用 HTTP 请求的校验规则
func ValidateBinding(s interface{}) error {
	if bindingValidate == nil {
		bindingValidate = validator.New()
		bindingValidate.SetTagName("binding")
	}
	if err := bindingValidate.Struct(s); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError 格式化验证错误
func formatValidationError(err error) error {
	var messages []string

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			field := e.Namespace()
			param := e.Param()

			var message string
			switch e.Tag() {
			case "required":
				message = fmt.Sprintf("%s是必填字段", field)
			case "nonblank":
				message = fmt.Sprintf("%s不能为空白", field)
			case "min":
				message = fmt.Sprintf("%s不能小于%s", field, param)
			case "max":
				message = fmt.Sprintf("%s不能大于%s", field, param)
			case "oneof":
				message = fmt.Sprintf("%s必须是以下之一: %s", field, param)
			default:
				message = fmt.Sprintf("%s验证失败: %s", field, e.Tag())
			}

			messages = append(messages, message)
		}
	}

	if len(messages) > 0 {
		return errors.New(strings.Join(messages, "; "))
	}

	return err
}
