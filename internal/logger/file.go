package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// File rotation limits.
const (
	fileMaxSizeMB  = 10
	fileMaxBackups = 5
	fileMaxAgeDays = 30
)

// NewFileWriter returns a writer appending to path. The file is rotated at
// 10 MB; old files are gzipped and pruned after 5 backups or 30 days.
func NewFileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    fileMaxSizeMB,
		MaxBackups: fileMaxBackups,
		MaxAge:     fileMaxAgeDays,
		LocalTime:  true,
		Compress:   true,
	}
}
