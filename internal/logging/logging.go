// Package logging provides the leveled console logger used across the
// analyzer. Output is a single styled stream: a colored level tag followed
// by the message. Success and Critical extend the standard slog levels so
// the run summary can distinguish "unit done" from plain progress info.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"charm.land/lipgloss/v2"
)

const (
	// LevelSuccess sits between Info and Warn.
	LevelSuccess = slog.Level(2)
	// LevelCritical sits above Error.
	LevelCritical = slog.Level(12)
)

var (
	mu     sync.Mutex
	out    io.Writer = os.Stderr
	minLvl slog.Level
)

var tagStyles = map[slog.Level]lipgloss.Style{
	slog.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	slog.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	LevelSuccess:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	slog.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	slog.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	LevelCritical:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
}

func tag(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRIT"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= LevelSuccess:
		return "OK"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// SetOutput redirects log output. Intended for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetVerbose lowers the minimum level to Debug.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if v {
		minLvl = slog.LevelDebug
	} else {
		minLvl = slog.LevelInfo
	}
}

func log(l slog.Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < minLvl {
		return
	}
	style, ok := tagStyles[l]
	if !ok {
		style = lipgloss.NewStyle()
	}
	fmt.Fprintf(out, "%s %s\n", style.Render(fmt.Sprintf("%-5s", tag(l))), fmt.Sprintf(format, args...))
}

func Debug(format string, args ...any)    { log(slog.LevelDebug, format, args...) }
func Info(format string, args ...any)     { log(slog.LevelInfo, format, args...) }
func Success(format string, args ...any)  { log(LevelSuccess, format, args...) }
func Warn(format string, args ...any)     { log(slog.LevelWarn, format, args...) }
func Error(format string, args ...any)    { log(slog.LevelError, format, args...) }
func Critical(format string, args ...any) { log(LevelCritical, format, args...) }
