// Package logging configures the process-wide logrus logger to the
// line format and file layout spec §6 fixes: `[<ISO-timestamp>: <LEVEL>]
// <message>`, appended to `logs/log_<YYYY-MM-DD>.txt`.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// formatter renders one entry as spec §6's fixed line format.
type formatter struct{}

func (formatter) Format(e *logrus.Entry) ([]byte, error) {
	line := fmt.Sprintf("[%s: %s] %s\n", e.Time.Format(time.RFC3339), levelName(e.Level), e.Message)
	return []byte(line), nil
}

func levelName(l logrus.Level) string {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARNING"
	case logrus.ErrorLevel:
		return "ERROR"
	case logrus.FatalLevel, logrus.PanicLevel:
		return "CRITICAL"
	default:
		return "INFO"
	}
}

// dailyFile is an io.Writer that reopens log_<YYYY-MM-DD>.txt under dir
// whenever the calendar date changes, so a long-running process rolls
// onto a new file at midnight without an external rotation library.
type dailyFile struct {
	mu      sync.Mutex
	dir     string
	day     string
	current *os.File
}

func newDailyFile(dir string) *dailyFile {
	return &dailyFile{dir: dir}
}

func (f *dailyFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if today != f.day || f.current == nil {
		if f.current != nil {
			_ = f.current.Close()
		}
		path := filepath.Join(f.dir, fmt.Sprintf("log_%s.txt", today))
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 0, fmt.Errorf("logging: opening %s: %w", path, err)
		}
		f.current = file
		f.day = today
	}
	return f.current.Write(p)
}

// Init configures logrus with the fixed formatter and a date-rolling file
// sink rooted at dir (spec §6). level is one of logrus's level names
// ("debug", "info", "warning", "error"); an invalid level is a config
// error, surfaced by the caller as Critical (spec §7: "logger init fails").
func Init(dir, level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("logging: invalid level %q: %w", level, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: creating log directory %s: %w", dir, err)
	}

	logrus.SetFormatter(formatter{})
	logrus.SetLevel(lvl)
	logrus.SetOutput(newDailyFile(dir))
	return nil
}
