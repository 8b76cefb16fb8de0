package utils

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathOutsideRoot 路径不在数据目录内
var ErrPathOutsideRoot = errors.New("路径超出数据目录")

// ResolveUnder 检查 p 位于 root 之下，返回清理后的 p
func ResolveUnder(root, p string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, p)
	}
	return filepath.Clean(p), nil
}
