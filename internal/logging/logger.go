package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает имя уровня, неизвестное имя даёт INFO
func ParseLevel(name string) LogLevel {
	switch name {
	case "trace", "TRACE":
		return TRACE
	case "debug", "DEBUG":
		return DEBUG
	case "warn", "WARN":
		return WARN
	case "error", "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// traceLevel лежит ниже DebugLevel, у zap собственного уровня TRACE нет
const traceLevel = zapcore.DebugLevel - 1

// zapLevel отображает уровень на zap
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case TRACE:
		return traceLevel
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Options задаёт параметры файлового вывода
type Options struct {
	Dir          string   // Каталог для файлов логов
	ConsoleLevel LogLevel // Минимальный уровень для консоли
	FileLevel    LogLevel // Минимальный уровень для файла
	MaxSizeMB    int      // Размер файла до ротации
	MaxBackups   int      // Сколько старых файлов хранить
}

// DefaultOptions возвращает параметры по умолчанию
func DefaultOptions() Options {
	return Options{
		Dir:          "logs",
		ConsoleLevel: INFO,
		FileLevel:    TRACE,
		MaxSizeMB:    50,
		MaxBackups:   5,
	}
}

var (
	optionsMu sync.RWMutex
	options   = DefaultOptions()
)

// Configure меняет параметры для логгеров, созданных после вызова
func Configure(opts Options) {
	optionsMu.Lock()
	defer optionsMu.Unlock()
	options = opts
}

// consoleSink принимает консольный вывод всех логгеров
var consoleSink zapcore.WriteSyncer = zapcore.Lock(os.Stdout)

func encodeLevel(lvl zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if lvl == traceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(lvl, enc)
}

func currentOptions() Options {
	optionsMu.RLock()
	defer optionsMu.RUnlock()
	return options
}

// Logger представляет логгер компонента с выводом в консоль и файл
type Logger struct {
	component       string
	base            *zap.Logger
	sugar           *zap.SugaredLogger
	file            *lumberjack.Logger
	minConsoleLevel atomic.Int32
	minFileLevel    atomic.Int32
}

// NewLogger создаёт логгер компонента, пишущий в <dir>/<component>.log
func NewLogger(component string) (*Logger, error) {
	opts := currentOptions()

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", opts.Dir, err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, component+".log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	l := &Logger{
		component: component,
		file:      file,
	}
	l.SetLevels(opts.ConsoleLevel, opts.FileLevel)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = encodeLevel

	// Уровни читаются при каждой записи, чтобы SetLogLevel действовал сразу
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		consoleSink,
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= LogLevel(l.minConsoleLevel.Load()).zapLevel() }),
	)
	fileCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(file),
		zap.LevelEnablerFunc(func(lvl zapcore.Level) bool { return lvl >= LogLevel(l.minFileLevel.Load()).zapLevel() }),
	)

	l.base = zap.New(zapcore.NewTee(consoleCore, fileCore)).Named(component)
	l.sugar = l.base.Sugar()
	return l, nil
}

// Nop возвращает логгер, который ничего не пишет
func Nop() *Logger {
	base := zap.NewNop()
	l := &Logger{
		component: "nop",
		base:      base,
		sugar:     base.Sugar(),
	}
	l.SetLevels(ERROR, ERROR)
	return l
}

// SetLevels меняет минимальные уровни для консоли и файла
func (l *Logger) SetLevels(console, file LogLevel) {
	l.minConsoleLevel.Store(int32(console))
	l.minFileLevel.Store(int32(file))
}

// Component возвращает имя компонента
func (l *Logger) Component() string {
	return l.component
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) {
	if ce := l.base.Check(traceLevel, ""); ce != nil {
		ce.Message = fmt.Sprintf(format, args...)
		ce.Write()
	}
}

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Close сбрасывает буферы и закрывает файл
func (l *Logger) Close() error {
	_ = l.sugar.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Глобальный логгер по умолчанию
var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// InitDefaultLogger инициализирует глобальный логгер для компонента
func InitDefaultLogger(component string) error {
	logger, err := NewLogger(component)
	if err != nil {
		return err
	}

	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
	return nil
}

// CloseDefaultLogger закрывает глобальный логгер
func CloseDefaultLogger() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultLogger != nil {
		defaultLogger.Close()
		defaultLogger = nil
	}
}

// Default возвращает глобальный логгер или Nop, если он не инициализирован
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()

	if defaultLogger == nil {
		return Nop()
	}
	return defaultLogger
}

// Trace логирует через глобальный логгер
func Trace(format string, args ...interface{}) { Default().Trace(format, args...) }

// Debug логирует через глобальный логгер
func Debug(format string, args ...interface{}) { Default().Debug(format, args...) }

// Info логирует через глобальный логгер
func Info(format string, args ...interface{}) { Default().Info(format, args...) }

// Warn логирует через глобальный логгер
func Warn(format string, args ...interface{}) { Default().Warn(format, args...) }

// Error логирует через глобальный логгер
func Error(format string, args ...interface{}) { Default().Error(format, args...) }
