package database

import (
	"fmt"
	"time"

	"gorm.io/gorm/logger"

	applog "github.com/charlesng35/happycat/pkg/logger"
)

// gormLogger keeps gorm quiet except for errors; slow queries surface as warnings.
func gormLogger() logger.Interface {
	return logger.New(zapWriter{}, logger.Config{
		SlowThreshold:             500 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

type zapWriter struct{}

func (zapWriter) Printf(format string, args ...interface{}) {
	applog.WithModule("gorm").Warn(fmt.Sprintf(format, args...))
}
