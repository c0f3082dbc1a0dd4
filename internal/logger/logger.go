// Package logger writes categorized log lines to the terminal in color and,
// for the service binaries, as JSON lines to a daily file under LOG_DIR.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (lv Level) String() string {
	if lv < DEBUG || lv > FATAL {
		return "INFO"
	}
	return levelNames[lv]
}

// ParseLevel maps a LOG_LEVEL value to a Level, INFO when unknown.
func ParseLevel(s string) Level {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i)
		}
	}
	return INFO
}

// palette colors the level and the category of a terminal line.
var palette = map[Level]color.Attribute{
	DEBUG: color.FgCyan,
	INFO:  color.FgGreen,
	WARN:  color.FgYellow,
	ERROR: color.FgRed,
	FATAL: color.FgRed,
}

var (
	clockColor  = color.New(color.FgBlue)
	callerColor = color.New(color.FgMagenta)
)

// Entry is one line of the JSON log file.
type Entry struct {
	Time     time.Time `json:"time"`
	Level    string    `json:"level"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
	Caller   string    `json:"caller,omitempty"`
}

type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	file     *os.File
	minLevel Level
	exit     func(int)
}

// NewLogger logs to stdout and to <LOG_DIR>/ordering-<date>.log.
func NewLogger() *Logger {
	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("logger: cannot create %s: %v", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("ordering-%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("logger: cannot open %s: %v", path, err)
	}

	l := &Logger{out: os.Stdout, file: file, minLevel: ParseLevel(os.Getenv("LOG_LEVEL")), exit: os.Exit}
	l.Info("LOGGER", fmt.Sprintf("Writing logs to %s", path))
	return l
}

// NewTestLogger returns a logger that discards everything.
func NewTestLogger() *Logger {
	return New(io.Discard, DEBUG)
}

// New returns a terminal-only logger writing to w.
func New(w io.Writer, minLevel Level) *Logger {
	return &Logger{out: w, minLevel: minLevel, exit: os.Exit}
}

func (l *Logger) write(level Level, category, message string) {
	if l == nil || level < l.minLevel {
		return
	}

	e := Entry{
		Time:     time.Now().UTC(),
		Level:    level.String(),
		Category: strings.ToUpper(category),
		Message:  message,
	}
	// frames: write, logf, the exported method
	if _, file, line, ok := runtime.Caller(3); ok {
		e.Caller = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.out, terminalLine(level, e))
	if l.file != nil {
		if b, err := json.Marshal(e); err == nil {
			l.file.Write(append(b, '\n'))
		}
	}
}

func terminalLine(level Level, e Entry) string {
	tone := palette[level]
	var b strings.Builder
	b.WriteString(clockColor.Sprint(e.Time.Format("15:04:05")))
	b.WriteByte(' ')
	b.WriteString(color.New(tone).Sprintf("%-5s", e.Level))
	b.WriteByte(' ')
	b.WriteString(color.New(tone, color.Bold).Sprintf("[%-10s]", e.Category))
	b.WriteByte(' ')
	b.WriteString(e.Message)
	if e.Caller != "" {
		b.WriteString(callerColor.Sprintf(" (%s)", e.Caller))
	}
	b.WriteByte('\n')
	return b.String()
}

func (l *Logger) logf(level Level, category, message string) {
	l.write(level, category, message)
}

func (l *Logger) Debug(category, message string) { l.logf(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.logf(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.logf(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.logf(ERROR, category, message) }

// Fatal logs and exits the process with status 1.
func (l *Logger) Fatal(category, message string) {
	l.logf(FATAL, category, message)
	l.exit(1)
}

// ---------------- COMPONENT HELPERS ----------------

func (l *Logger) LogOrder(action, orderID, message string) {
	l.logf(INFO, "ORDER", fmt.Sprintf("[%s] %s - %s", action, orderID, message))
}

func (l *Logger) LogSession(action, sessionID, message string) {
	l.logf(INFO, "SESSION", fmt.Sprintf("[%s] %s - %s", action, sessionID, message))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.logf(INFO, "KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.logf(INFO, "DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

// LogAPI records one served request.
func (l *Logger) LogAPI(method, path, status, duration string) {
	l.logf(INFO, "API", fmt.Sprintf("%s %s → %s in %s", method, path, status, duration))
}

// LogSecurity records a refused or suspicious request at WARN.
func (l *Logger) LogSecurity(event, message string) {
	l.logf(WARN, "SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l == nil || l.file == nil {
		return
	}
	l.Info("LOGGER", "Closing log file")
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file.Close()
	l.file = nil
}
