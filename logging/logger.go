package logging

import (
	"path/filepath"

	"csv-generator/utils"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a named, file-backed structured logger (access.log, report.log...).
type Logger struct {
	*zap.SugaredLogger
	file *lumberjack.Logger
}

// NewLogger opens (in append mode, with rotation) dir/fname and returns a
// JSON logger at the given level ("debug", "info", "warn", "error").
func NewLogger(dir, fname, level string) (*Logger, error) {
	if dir == "" {
		dir = "./logs"
	}
	if err := utils.EnsureDirExists(dir); err != nil {
		return nil, err
	}
	lvl := zap.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, fname),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), lvl)
	return &Logger{
		SugaredLogger: zap.New(core).Named(fname).Sugar(),
		file:          file,
	}, nil
}

// NewLoggerOrDie is NewLogger for main.go.
func NewLoggerOrDie(dir, fname, level string) *Logger {
	l, err := NewLogger(dir, fname, level)
	if err != nil {
		panic(err)
	}
	return l
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() {
	_ = l.Sync()
	if l.file != nil {
		l.file.Close()
	}
}
