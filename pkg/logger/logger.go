package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例（即 logrus 标准 logger，组件内的 logrus.WithField 共享同一输出）
	Logger = logrus.StandardLogger()
	// currentLogFile 当前日志文件路径
	currentLogFile string
	// fileWriter 当前文件输出（用于关闭）
	fileWriter *lumberjack.Logger
	// logMu 初始化锁
	logMu sync.Mutex
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level"`       // 日志级别: debug, info, warn, error
	OutputFile string `yaml:"output_file"` // 日志文件路径（可选，为空则只输出到控制台）
	MaxSize    int    `yaml:"max_size"`    // 日志文件最大大小（MB）
	MaxBackups int    `yaml:"max_backups"` // 保留的旧日志文件数量
	MaxAge     int    `yaml:"max_age"`     // 保留旧日志文件的天数
	Compress   bool   `yaml:"compress"`    // 是否压缩旧日志文件
	NoColor    bool   `yaml:"no_color"`    // 关闭终端颜色
}

// Init 初始化日志系统
func Init(config Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	// 设置日志级别
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	// 设置日志格式
	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05", // 格式: yy-mm-dd HH:MM:ss
		ForceColors:     !config.NoColor,
		DisableColors:   config.NoColor,
	})

	// 设置输出
	writers := []io.Writer{os.Stdout}
	if fileWriter != nil {
		_ = fileWriter.Close()
		fileWriter = nil
	}
	currentLogFile = ""

	// 如果配置了日志文件，添加文件输出（lumberjack 负责按大小轮转）
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0755); err != nil {
			return err
		}
		if config.MaxSize <= 0 {
			config.MaxSize = 100
		}
		if config.MaxBackups <= 0 {
			config.MaxBackups = 7
		}
		if config.MaxAge <= 0 {
			config.MaxAge = 30
		}
		fileWriter = &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}
		writers = append(writers, fileWriter)
		currentLogFile = config.OutputFile
	}

	Logger.SetOutput(io.MultiWriter(writers...))
	return nil
}

// InitDefault 使用默认配置初始化（仅控制台，info 级别）
func InitDefault() error {
	return Init(Config{Level: "info"})
}

// Close 关闭文件输出
func Close() error {
	logMu.Lock()
	defer logMu.Unlock()
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	Logger.SetOutput(os.Stdout)
	return err
}

// GetCurrentLogFile 当前日志文件路径
func GetCurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}

// Debug 调试日志
func Debug(args ...interface{}) {
	Logger.Debug(args...)
}

// Debugf 格式化调试日志
func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

// Info 信息日志
func Info(args ...interface{}) {
	Logger.Info(args...)
}

// Infof 格式化信息日志
func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

// Warn 警告日志
func Warn(args ...interface{}) {
	Logger.Warn(args...)
}

// Warnf 格式化警告日志
func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

// Error 错误日志
func Error(args ...interface{}) {
	Logger.Error(args...)
}

// Errorf 格式化错误日志
func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}

// WithField 带字段的日志
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields 带多个字段的日志
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}
