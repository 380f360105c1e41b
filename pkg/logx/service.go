package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultLogFile = "./uninotifier.log"

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the process sinks. Loggers it hands out pick up every Apply.
type Service struct {
	mu       sync.Mutex
	stdout   io.Writer
	file     *os.File
	filePath string

	zl atomic.Pointer[zerolog.Logger]
}

// New applies cfg and returns the service with its root logger.
func New(cfg Config) (*Service, Logger) {
	return newService(cfg, os.Stdout)
}

func newService(cfg Config, stdout io.Writer) (*Service, Logger) {
	s := &Service{stdout: stdout}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.zl.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Apply switches level and sinks. The log file is reopened only when its
// path changes. With no sink enabled, events go to the console.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := strings.TrimSpace(cfg.File.Path)
	if path == "" {
		path = defaultLogFile
	}
	if s.file != nil && (!cfg.File.Enabled || path != s.filePath) {
		_ = s.file.Close()
		s.file, s.filePath = nil, ""
	}
	if cfg.File.Enabled && s.file == nil {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file, s.filePath = f, path
		}
	}

	var sinks []io.Writer
	if cfg.Console || s.file == nil {
		sinks = append(sinks, consoleWriter(s.stdout))
	}
	if s.file != nil {
		sinks = append(sinks, zerolog.SyncWriter(s.file))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.zl.Store(&zl)
}

// Close releases the log file. Later events go to the console only.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	zl := s.current().Output(consoleWriter(s.stdout))
	s.zl.Store(&zl)
	err := s.file.Close()
	s.file, s.filePath = nil, ""
	return err
}

// consoleWriter renders "time LVL comp caller msg k=v".
func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:           w,
		TimeFormat:    timeFormat,
		PartsOrder:    []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, compKey, zerolog.CallerFieldName, zerolog.MessageFieldName},
		FieldsExclude: []string{compKey},
		FormatCaller:  func(i any) string { s, _ := i.(string); return s },
	}
}
