// Package dataset 负责教师示范数据集的追加写入与续写编号。
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"distill-go/internal/dto"
)

// Mode 打开方式
type Mode int

const (
	// ModeOverwrite 清空已有输出，编号从 0 开始
	ModeOverwrite Mode = iota
	// ModeAppend 保留已有输出，编号从已有非空行数开始
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "overwrite"
}

// ErrClosed 写入已关闭的数据集
var ErrClosed = errors.New("数据集已关闭")

// maxRecordSize 单行记录上限
const maxRecordSize = 16 * 1024 * 1024

// Writer 数据集写入器，同一输出路径只应有一个
type Writer struct {
	mu      sync.Mutex
	path    string
	mode    Mode
	file    *os.File
	size    int64
	start   int
	next    int
	written int
}

// Open 打开数据集
func Open(path string, mode Mode) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}

	start := 0
	if mode == ModeAppend {
		n, err := CountRecords(path)
		if err != nil {
			return nil, err
		}
		start = n
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == ModeAppend {
		flags = os.O_CREATE | os.O_RDWR | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开输出文件失败: %w", err)
	}

	var size int64
	if mode == ModeAppend {
		if size, err = terminateTail(f); err != nil {
			f.Close()
			return nil, err
		}
	}

	return &Writer{
		path:  path,
		mode:  mode,
		file:  f,
		size:  size,
		start: start,
		next:  start,
	}, nil
}

// CountRecords 统计已有输出的非空行数，文件不存在时为 0
func CountRecords(path string) (int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("打开输出文件失败: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("统计输出记录失败: %w", err)
	}
	return count, nil
}

// terminateTail 上次中断留下的半行补换行，新记录从新行开始
func terminateTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("读取输出文件信息失败: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("读取输出文件末尾失败: %w", err)
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

// Write 分配编号并写入一行
// 写入失败时截断回写入前的长度，编号不被占用；写入器不重试。
func (w *Writer) Write(rec *dto.DatasetRecord) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, ErrClosed
	}

	r := *rec
	r.ID = w.next

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&r); err != nil {
		return 0, fmt.Errorf("序列化记录失败: %w", err)
	}

	n, err := w.file.Write(buf.Bytes())
	if err != nil {
		if n > 0 {
			if truncErr := w.file.Truncate(w.size); truncErr != nil {
				return 0, fmt.Errorf("写入记录失败: %v; 回滚失败: %w", err, truncErr)
			}
		}
		return 0, fmt.Errorf("写入记录失败: %w", err)
	}

	w.size += int64(n)
	w.next++
	w.written++
	return r.ID, nil
}

// Next 下一条记录的编号
func (w *Writer) Next() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next
}

// Start 本次打开时的起始编号
func (w *Writer) Start() int {
	return w.start
}

// Written 本次写入的记录数
func (w *Writer) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Path 输出路径
func (w *Writer) Path() string {
	return w.path
}

// Mode 打开方式
func (w *Writer) Mode() Mode {
	return w.mode
}

// Close 刷盘并关闭，可重复调用
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	f := w.file
	w.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("输出刷盘失败: %w", err)
	}
	return f.Close()
}
