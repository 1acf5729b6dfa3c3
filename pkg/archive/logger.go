package archive

import (
	"fmt"
	"strings"

	gormlogger "gorm.io/gorm/logger"

	"github.com/tokmz/ircium/pkg/logger"
)

// zapWriter 将 gorm 日志写入 zap
type zapWriter struct {
	log logger.Logger
}

func (w zapWriter) Printf(format string, args ...any) {
	w.log.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// newLogger 创建 GORM 日志记录器
func newLogger(cfg *Config, log logger.Logger) gormlogger.Interface {
	return gormlogger.New(
		zapWriter{log: log},
		gormlogger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  gormlogger.LogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
