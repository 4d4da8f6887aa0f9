package log

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warn
	Error
	Fatal
	// Off disables all output.
	Off
)

func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	case Off:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configured level name like "info" into a LogLevel.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG", "TRACE":
		return Debug, nil
	case "INFO", "":
		return Info, nil
	case "WARN", "WARNING":
		return Warn, nil
	case "ERROR":
		return Error, nil
	case "FATAL":
		return Fatal, nil
	case "OFF", "NONE":
		return Off, nil
	default:
		return Info, fmt.Errorf("log: invalid log level '%s'", level)
	}
}

var levelColors = map[LogLevel]*color.Color{
	Debug: color.New(color.FgBlue),
	Info:  color.New(color.FgGreen),
	Warn:  color.New(color.FgYellow),
	Error: color.New(color.FgRed),
	Fatal: color.New(color.FgMagenta, color.Bold),
}

func (l LogLevel) colorize(s string) string {
	if c, ok := levelColors[l]; ok {
		return c.Sprint(s)
	}
	return s
}
