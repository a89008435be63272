package log

import "strings"

// LogLevel orders message severities; messages below the logger's
// level are dropped.
type LogLevel int

const (
	Debug LogLevel = iota
	Info
	Warn
	Error

	// levelOff sits above every real level; used by Noop.
	levelOff
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
	default:
		return "UNKNOWN"
	}
}

// color returns the ANSI escape for the level's terminal color.
func (l LogLevel) color() string {
	switch l {
	case Debug:
		return "\033[34m"
	case Info:
		return "\033[32m"
	case Warn:
		return "\033[33m"
	case Error:
		return "\033[31m"
	default:
		return "\033[0m"
	}
}

// ParseLevel maps a level name to its LogLevel. Unknown names report
// ok=false and default to Info.
func ParseLevel(name string) (level LogLevel, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return Debug, true
	case "INFO":
		return Info, true
	case "WARN", "WARNING":
		return Warn, true
	case "ERROR":
		return Error, true
	default:
		return Info, false
	}
}
