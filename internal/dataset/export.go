package dataset

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"distill-go/internal/dto"
)

// 导出格式
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	// FormatTurns 多轮对话格式，meta 为要求列表，Human/Assistant 为输入输出
	FormatTurns = "turns"
)

// ErrUnknownFormat 不支持的导出格式
var ErrUnknownFormat = errors.New("不支持的导出格式")

// maxRecordLine 单行记录上限
const maxRecordLine = 16 * 1024 * 1024

// Turn 对话轮次
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// TurnsRecord 多轮对话格式的一条记录
type TurnsRecord struct {
	Meta  map[string]interface{} `json:"meta"`
	Turns []Turn                 `json:"turns"`
}

// scanRecords 逐行解析数据集，跳过空行和无法解析的行
func scanRecords(path string, fn func(rec *dto.DatasetRecord) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("打开数据集失败: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec dto.DatasetRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if !fn(&rec) {
			return nil
		}
	}
	return scanner.Err()
}

// ReadRecords 分页读取数据集记录，返回该页记录和可解析的记录总数
func ReadRecords(path string, offset, limit int) ([]dto.DatasetRecord, int, error) {
	var records []dto.DatasetRecord
	total := 0
	err := scanRecords(path, func(rec *dto.DatasetRecord) bool {
		if total >= offset && (limit <= 0 || len(records) < limit) {
			records = append(records, *rec)
		}
		total++
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Export 把数据集按 format 写到 w，返回导出的记录数
// 损坏的行跳过。
func Export(w io.Writer, path, format string) (int, error) {
	switch format {
	case FormatJSONL, "":
		return exportJSONL(w, path)
	case FormatCSV:
		return exportCSV(w, path)
	case FormatTurns:
		return exportTurns(w, path)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

func exportJSONL(w io.Writer, path string) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	count := 0
	var writeErr error
	err := scanRecords(path, func(rec *dto.DatasetRecord) bool {
		if writeErr = enc.Encode(rec); writeErr != nil {
			return false
		}
		count++
		return true
	})
	if err == nil {
		err = writeErr
	}
	return count, err
}

// exportCSV 带 UTF-8 BOM，方便表格软件直接打开
func exportCSV(w io.Writer, path string) (int, error) {
	if _, err := io.WriteString(w, "\xEF\xBB\xBF"); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "input", "output", "requirements", "variant", "cache_key"}); err != nil {
		return 0, err
	}

	count := 0
	var writeErr error
	err := scanRecords(path, func(rec *dto.DatasetRecord) bool {
		writeErr = cw.Write([]string{
			strconv.Itoa(rec.ID),
			rec.Input,
			rec.Output,
			strings.Join(rec.Requirements, ";"),
			strconv.Itoa(rec.Variant),
			rec.CacheKey,
		})
		if writeErr != nil {
			return false
		}
		count++
		return true
	})
	cw.Flush()
	if err == nil {
		err = writeErr
	}
	if err == nil {
		err = cw.Error()
	}
	return count, err
}

func exportTurns(w io.Writer, path string) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	count := 0
	var writeErr error
	err := scanRecords(path, func(rec *dto.DatasetRecord) bool {
		out := TurnsRecord{
			Meta: map[string]interface{}{
				"meta_description": strings.Join(rec.Requirements, ";"),
				"id":               rec.ID,
			},
			Turns: []Turn{
				{Role: "Human", Text: rec.Input},
				{Role: "Assistant", Text: rec.Output},
			},
		}
		if writeErr = enc.Encode(out); writeErr != nil {
			return false
		}
		count++
		return true
	})
	if err == nil {
		err = writeErr
	}
	return count, err
}
