package cleaner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// FileReport 清洗统计
type FileReport struct {
	Total     int `json:"total"`
	Cleaned   int `json:"cleaned"`
	Malformed int `json:"malformed"`
}

// maxLineSize 单行记录上限
const maxLineSize = 16 * 1024 * 1024

// CleanFile 清洗 JSONL 数据集中被元数据包裹的 input 字段
// outPath 为空或与 inPath 相同时就地改写（先写临时文件再替换）。
func CleanFile(inPath, outPath string, logger logrus.FieldLogger) (*FileReport, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	src, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("打开输入文件失败: %w", err)
	}
	defer src.Close()

	inPlace := outPath == "" || filepath.Clean(outPath) == filepath.Clean(inPath)
	target := outPath
	if inPlace {
		target = inPath + ".tmp"
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	dst, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("创建输出文件失败: %w", err)
	}

	report, err := cleanLines(src, dst, logger)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if inPlace {
			os.Remove(target)
		}
		return nil, err
	}

	if inPlace {
		if err := os.Rename(target, inPath); err != nil {
			return nil, fmt.Errorf("替换原文件失败: %w", err)
		}
	}
	return report, nil
}

func cleanLines(src *os.File, dst *os.File, logger logrus.FieldLogger) (*FileReport, error) {
	report := &FileReport{}
	w := bufio.NewWriter(dst)

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		report.Total++

		var obj map[string]interface{}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			report.Malformed++
			logger.WithField("line", Excerpt(line, 120)).Warn("跳过无法解析的行")
			continue
		}

		// 非字符串的 input 原样保留
		if old, ok := obj["input"].(string); ok {
			if cleaned := Clean(old); cleaned != old {
				report.Cleaned++
				obj["input"] = cleaned
			}
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(obj); err != nil {
			return nil, fmt.Errorf("序列化失败: %w", err)
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return nil, fmt.Errorf("写入失败: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取输入文件失败: %w", err)
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("写入失败: %w", err)
	}
	return report, nil
}

// Excerpt 截取前 n 个字符用于日志
func Excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
