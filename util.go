package tapfix

import (
	"time"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
)

const (
	DefaultScenarioTTL     = 30 * time.Minute
	DefaultScenarioCleanup = time.Minute
	DefaultBind            = "127.0.0.1:5050"
	DefaultFormat          = "json"
)

// NewID returns a new UUID4 as a string, used to name scenarios.
func NewID() string {
	return uuid.NewV4().String()
}

// HandleMinorError logs err, if any, through the global logger.
func HandleMinorError(err error) {
	if err != nil {
		zap.L().Error("ERROR", zap.Error(err))
	}
}

// HandleFatalError receives an error, then logs and exits if not nil.
func HandleFatalError(err error) {
	if err != nil {
		zap.L().Fatal("ERROR", zap.Error(err))
	}
}
