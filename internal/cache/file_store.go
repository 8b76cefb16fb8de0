package cache

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxEntrySize 单条缓存行上限
const maxEntrySize = 16 * 1024 * 1024

// LoadReport 缓存文件加载统计
type LoadReport struct {
	Entries    int `json:"entries"`
	Corrupt    int `json:"corrupt"`
	Duplicates int `json:"duplicates"`
}

// Load 读取 JSONL 缓存文件，不依赖流水线的其他部分
// 损坏的行跳过并告警；同 key 多行时以第一条为准，除非后来的条目带 forced 标记。
func Load(path string, logger logrus.FieldLogger) (map[string]*Demonstration, *LoadReport, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	entries := make(map[string]*Demonstration)
	report := &LoadReport{}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, report, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("打开缓存文件失败: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntrySize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var demo Demonstration
		if err := json.Unmarshal([]byte(line), &demo); err != nil || demo.Key == "" {
			report.Corrupt++
			logger.WithFields(logrus.Fields{"path": path, "line": lineNo}).Warnf("%v，已跳过", ErrCorruptEntry)
			continue
		}

		if _, exists := entries[demo.Key]; exists && !demo.Forced {
			report.Duplicates++
			continue
		}
		d := demo
		entries[demo.Key] = &d
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("读取缓存文件失败: %w", err)
	}

	report.Entries = len(entries)
	return entries, report, nil
}

// FileStore JSONL 文件缓存，每行一条示范
type FileStore struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	size    int64
	entries map[string]*Demonstration
	report  *LoadReport
	logger  logrus.FieldLogger
}

// OpenFileStore 打开（或创建）缓存文件
func OpenFileStore(path string, logger logrus.FieldLogger) (*FileStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "teacher_cache")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}

	entries, report, err := Load(path, logger)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开缓存文件失败: %w", err)
	}

	size, err := terminateLastLine(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":       path,
		"entries":    report.Entries,
		"corrupt":    report.Corrupt,
		"duplicates": report.Duplicates,
	}).Info("教师示范缓存已加载")

	return &FileStore{
		path:    path,
		file:    f,
		size:    size,
		entries: entries,
		report:  report,
		logger:  logger,
	}, nil
}

// terminateLastLine 上次中断留下的半行补一个换行，避免和新条目粘在一起
func terminateLastLine(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("读取文件信息失败: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("读取文件末尾失败: %w", err)
	}
	if last[0] == '\n' {
		return size, nil
	}
	n, err := f.Write([]byte{'\n'})
	if err != nil {
		return 0, fmt.Errorf("补全换行失败: %w", err)
	}
	return size + int64(n), nil
}

// Get 查询缓存
func (s *FileStore) Get(_ context.Context, key string) (*Demonstration, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	demo, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	d := *demo
	return &d, true, nil
}

// Put 追加一条示范
// 已有同 key 且未强制时直接返回 false；写入失败时截断回写入前的长度。
func (s *FileStore) Put(_ context.Context, demo *Demonstration, force bool) (bool, error) {
	if demo == nil || demo.Key == "" {
		return false, errors.New("缓存条目缺少 key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return false, errors.New("缓存文件已关闭")
	}
	if _, exists := s.entries[demo.Key]; exists && !force {
		return false, nil
	}

	d := *demo
	d.Forced = force
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	line, err := encodeLine(&d)
	if err != nil {
		return false, err
	}

	n, err := s.file.Write(line)
	if err != nil {
		if truncErr := s.file.Truncate(s.size); truncErr != nil {
			s.logger.WithError(truncErr).Error("回滚缓存写入失败")
		}
		return false, fmt.Errorf("写入缓存失败: %w", err)
	}
	s.size += int64(n)
	s.entries[d.Key] = &d
	return true, nil
}

// Len 缓存条目数
func (s *FileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Report 加载时的统计
func (s *FileStore) Report() LoadReport {
	return *s.report
}

// Close 刷盘并关闭，可重复调用
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("缓存刷盘失败: %w", err)
	}
	return f.Close()
}

func encodeLine(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("序列化缓存条目失败: %w", err)
	}
	return buf.Bytes(), nil
}
