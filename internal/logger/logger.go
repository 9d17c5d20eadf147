// Package logger is the process-wide structured logger. Sync failures that
// the habit store absorbs end up here rather than on the terminal.
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/habitpilot/internal/constants"
)

const (
	logDirName    = "logs"
	maxSizeMB     = 10
	maxBackups    = 3
	maxAgeDays    = 28
	compressOlder = true
)

// Logger is nil until Init runs; the helpers below are no-ops before that.
var Logger *log.Logger

type Config struct {
	Debug     bool
	ConfigDir string
	// Output replaces the rotating log file when set.
	Output io.Writer
}

// FilePath is the rotating log file used for configDir.
func FilePath(configDir string) string {
	return filepath.Join(configDir, logDirName, constants.AppName+".log")
}

// Init installs the global logger. Without Output it writes to a rotating
// file under ConfigDir. Debug lowers the level to debug, reports callers and
// mirrors file output to stderr.
func Init(cfg Config) error {
	out := cfg.Output
	if out == nil {
		path := FilePath(cfg.ConfigDir)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		var rotating io.Writer = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   compressOlder,
		}
		out = rotating
		if cfg.Debug {
			out = io.MultiWriter(os.Stderr, rotating)
		}
	}

	level := log.WarnLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	Logger = log.NewWithOptions(out, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})
	return nil
}

func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs msg and exits with status 1, even when Init never ran.
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
