package log

import (
	"errors"

	"gopkg.in/natefinch/lumberjack.v2"
)

func newFileAppender(cfg FileOutputConfig) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("file output requires a path")
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}
