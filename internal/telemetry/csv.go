package telemetry

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var csvHeader = []string{
	"Timestamp",
	"token Y",
	"token X",
	"Rolling Beta",
	"Spread",
	"Rolling Mean",
	"Rolling SD",
	"Z-Score",
}

// CSVSink 每个周期追加一行（流式写入，每行立即 Flush）。空值写为空单元格。
// 迁移记录不写入 CSV。
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVSink 打开（或创建）CSV 文件，新文件写入表头
func NewCSVSink(path string) (*CSVSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "创建输出目录失败")
	}

	var needHeader bool
	if info, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "获取 CSV 文件信息失败")
		}
		needHeader = true
	} else if info.Size() == 0 {
		needHeader = true
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "打开 CSV 文件失败")
	}
	writer := csv.NewWriter(file)
	if needHeader {
		if err := writer.Write(csvHeader); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "写入 CSV 头失败")
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "刷新 CSV 头失败")
		}
	}
	return &CSVSink{file: file, writer: writer}, nil
}

func (s *CSVSink) RecordCycle(rec CycleRecord) error {
	row := []string{
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		formatFloat(rec.PriceY),
		formatFloat(rec.PriceX),
		formatOptional(rec.BetaRaw),
		formatOptional(rec.Spread),
		formatOptional(rec.Mean),
		formatOptional(rec.StdDev),
		formatOptional(rec.ZScore),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return errors.New("csv sink closed")
	}
	if err := s.writer.Write(row); err != nil {
		return errors.Wrap(err, "写入 CSV 失败")
	}
	s.writer.Flush()
	return s.writer.Error()
}

func (s *CSVSink) RecordTransition(rec TransitionRecord) error { return nil }

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	s.writer.Flush()
	err := s.writer.Error()
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	s.writer, s.file = nil, nil
	return err
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
