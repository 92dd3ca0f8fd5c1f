package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel は文字列からログレベルを解析する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// sink は出力先とその最小レベル
type sink struct {
	out      io.Writer
	minLevel Level
}

// Logger はスレッドセーフなロガー
// 出力先ごとに異なる最小レベルを持てる（端末はWARN、ファイルはINFOなど）
type Logger struct {
	mu    sync.Mutex
	sinks []sink
}

// Default はデフォルトのロガー
var Default = New(os.Stdout, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	return &Logger{
		sinks: []sink{{out: out, minLevel: minLevel}},
	}
}

// AddOutput は出力先を追加する
func (l *Logger) AddOutput(out io.Writer, minLevel Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink{out: out, minLevel: minLevel})
}

// SetLevel は最初の出力先のログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sinks) > 0 {
		l.sinks[0].minLevel = level
	}
}

// Enabled は指定レベルがいずれかの出力先で有効かを返す
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.sinks {
		if level >= s.minLevel {
			return true
		}
	}
	return false
}

// log は指定されたレベルでログを出力する
func (l *Logger) log(level Level, component string, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var line string
	for _, s := range l.sinks {
		if level < s.minLevel {
			continue
		}
		if line == "" {
			line = formatLine(level, component, fmt.Sprintf(format, args...))
		}
		_, _ = io.WriteString(s.out, line)
	}
}

func formatLine(level Level, component, msg string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	if component != "" {
		return fmt.Sprintf("[%s] [%s] [%s] %s\n", timestamp, level, component, msg)
	}
	return fmt.Sprintf("[%s] [%s] %s\n", timestamp, level, msg)
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(component string, format string, args ...any) {
	l.log(LevelDebug, component, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(component string, format string, args ...any) {
	l.log(LevelInfo, component, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(component string, format string, args ...any) {
	l.log(LevelWarn, component, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(component string, format string, args ...any) {
	l.log(LevelError, component, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// Debug はデバッグログを出力する
func Debug(component string, format string, args ...any) {
	Default.Debug(component, format, args...)
}

// Info は情報ログを出力する
func Info(component string, format string, args ...any) {
	Default.Info(component, format, args...)
}

// Warn は警告ログを出力する
func Warn(component string, format string, args ...any) {
	Default.Warn(component, format, args...)
}

// Error はエラーログを出力する
func Error(component string, format string, args ...any) {
	Default.Error(component, format, args...)
}
