// Package logging provides config-driven categorized logging for btpctl.
// Each subsystem logs through its own category; all categories share one zap core.
// Output goes to stderr (or a file) so stdout stays reserved for JSON payloads.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup, config loading
	CategoryLocator  Category = "locator"  // Binary discovery
	CategoryBuilder  Category = "builder"  // Argument vector assembly
	CategoryTactile  Category = "tactile"  // Process execution
	CategoryRetry    Category = "retry"    // Retry/backoff decisions
	CategoryClassify Category = "classify" // Error classification
	CategoryRecovery Category = "recovery" // Payload recovery
	CategoryJournal  Category = "journal"  // Execution journal
	CategoryEngine   Category = "engine"   // Request orchestration
	CategoryCLI      Category = "cli"      // Command-line front-end
)

// Config mirrors config.LoggingConfig to avoid an import cycle.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	File   string // empty = stderr
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	loggers = make(map[Category]*Logger)
	sink    *os.File
)

// Initialize builds the shared zap logger. Safe to call more than once;
// the latest configuration wins.
func Initialize(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	case "", "console", "text":
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	default:
		return fmt.Errorf("unknown log format: %s", cfg.Format)
	}

	var out *os.File = os.Stderr
	var opened *os.File
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		out, opened = f, f
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(out), level)
	Use(zap.New(core))

	mu.Lock()
	if sink != nil {
		_ = sink.Close()
	}
	sink = opened
	mu.Unlock()
	return nil
}

// Use installs an externally built zap logger (tests use zaptest/observer).
func Use(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	loggers = make(map[Category]*Logger)
}

// Sync flushes buffered entries and closes the file sink, if any.
func Sync() {
	mu.Lock()
	defer mu.Unlock()
	_ = base.Sync()
	if sink != nil {
		_ = sink.Close()
		sink = nil
	}
}

func parseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", raw)
	}
}

// Get returns (or creates) a logger for the given category.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a structured child logger carrying key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// WithRequestID creates a request-scoped logger for correlation.
func WithRequestID(category Category, requestID string) *Logger {
	return Get(category).With("req", requestID)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func Locator(format string, args ...interface{})      { Get(CategoryLocator).Info(format, args...) }
func LocatorDebug(format string, args ...interface{}) { Get(CategoryLocator).Debug(format, args...) }
func LocatorWarn(format string, args ...interface{})  { Get(CategoryLocator).Warn(format, args...) }

func BuilderDebug(format string, args ...interface{}) { Get(CategoryBuilder).Debug(format, args...) }
func BuilderWarn(format string, args ...interface{})  { Get(CategoryBuilder).Warn(format, args...) }

func Tactile(format string, args ...interface{})      { Get(CategoryTactile).Info(format, args...) }
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debug(format, args...) }
func TactileWarn(format string, args ...interface{})  { Get(CategoryTactile).Warn(format, args...) }
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Error(format, args...) }

func Retry(format string, args ...interface{})      { Get(CategoryRetry).Info(format, args...) }
func RetryDebug(format string, args ...interface{}) { Get(CategoryRetry).Debug(format, args...) }
func RetryWarn(format string, args ...interface{})  { Get(CategoryRetry).Warn(format, args...) }

func ClassifyDebug(format string, args ...interface{}) { Get(CategoryClassify).Debug(format, args...) }

func RecoveryDebug(format string, args ...interface{}) { Get(CategoryRecovery).Debug(format, args...) }
func RecoveryWarn(format string, args ...interface{})  { Get(CategoryRecovery).Warn(format, args...) }

func JournalDebug(format string, args ...interface{}) { Get(CategoryJournal).Debug(format, args...) }
func JournalError(format string, args ...interface{}) { Get(CategoryJournal).Error(format, args...) }

func Engine(format string, args ...interface{})      { Get(CategoryEngine).Info(format, args...) }
func EngineDebug(format string, args ...interface{}) { Get(CategoryEngine).Debug(format, args...) }
func EngineWarn(format string, args ...interface{})  { Get(CategoryEngine).Warn(format, args...) }

func CLIDebug(format string, args ...interface{}) { Get(CategoryCLI).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
