package logger

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// LogWriter 把需要 Printf 接口的组件（gorm SQL日志等）接到zap的输出端
type LogWriter struct {
	zapcore.WriteSyncer
}

func (l *LogWriter) Printf(format string, args ...interface{}) {
	_, _ = l.WriteSyncer.Write([]byte(fmt.Sprintf(format+"\n", args...)))
	_ = l.WriteSyncer.Sync()
}

// GetWriter 返回与全局日志共用输出端的写入器
func GetWriter() *LogWriter {
	return logWriter
}
