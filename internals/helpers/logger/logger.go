package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide structured logger. Init replaces its formatter and level.
var Log = logrus.New()

// Init configures Log with the JSON formatter and the LOG_LEVEL from the environment.
func Init(serviceName string) *logrus.Logger {
	Log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	Log.AddHook(serviceHook{name: serviceName})
	return Log
}

func parseLevel(v string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithRequest returns an entry tagged with the request and session ids.
func WithRequest(requestID, sessionID string) *logrus.Entry {
	f := logrus.Fields{}
	if requestID != "" {
		f["request_id"] = requestID
	}
	if sessionID != "" {
		f["session_id"] = sessionID
	}
	return Log.WithFields(f)
}

// WithAttempt tags an entry with an exam attempt id.
func WithAttempt(attemptID int64) *logrus.Entry {
	return Log.WithField("attempt_id", attemptID)
}

type serviceHook struct{ name string }

func (h serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h serviceHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["service"]; !ok {
		e.Data["service"] = h.name
	}
	return nil
}
