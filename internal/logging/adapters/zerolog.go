package adapters

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"jobpilot/internal/logging/types"
)

// ZerologConfig configures a zerolog-backed adapter
type ZerologConfig struct {
	Format   string // json or text
	Output   string // stdout, stderr or a file path
	NoColor  bool
	MkdirAll bool
}

// ZerologAdapter renders entries through zerolog onto a writer
type ZerologAdapter struct {
	name   string
	logger zerolog.Logger
	closer io.Closer
	mu     sync.Mutex
}

// NewZerologAdapter opens the configured output and builds the zerolog pipeline.
func NewZerologAdapter(name string, cfg ZerologConfig) (*ZerologAdapter, error) {
	var (
		out    io.Writer
		closer io.Closer
	)

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		if cfg.MkdirAll {
			if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	}

	return newZerologAdapter(name, out, closer, cfg), nil
}

// NewZerologWriterAdapter wraps an arbitrary writer
func NewZerologWriterAdapter(name string, w io.Writer, cfg ZerologConfig) *ZerologAdapter {
	return newZerologAdapter(name, w, nil, cfg)
}

func newZerologAdapter(name string, out io.Writer, closer io.Closer, cfg ZerologConfig) *ZerologAdapter {
	if strings.EqualFold(cfg.Format, "text") {
		out = zerolog.ConsoleWriter{Out: out, NoColor: cfg.NoColor, TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
	}

	return &ZerologAdapter{
		name: name,
		// level filtering happens in MultiLogger
		logger: zerolog.New(out).Level(zerolog.TraceLevel),
		closer: closer,
	}
}

func (a *ZerologAdapter) Write(entry *types.LogEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	event := a.logger.WithLevel(toZerologLevel(entry.Level))
	if event == nil {
		return nil
	}

	event = event.Time(zerolog.TimestampFieldName, entry.Timestamp)
	for k, v := range entry.Fields {
		if err, ok := v.(error); ok {
			event = event.AnErr(k, err)
			continue
		}
		event = event.Interface(k, v)
	}
	event.Msg(entry.Message)
	return nil
}

func (a *ZerologAdapter) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *ZerologAdapter) Health() error { return nil }

func (a *ZerologAdapter) Name() string { return a.name }

func toZerologLevel(level types.LogLevel) zerolog.Level {
	switch level {
	case types.DebugLevel:
		return zerolog.DebugLevel
	case types.WarnLevel:
		return zerolog.WarnLevel
	case types.ErrorLevel:
		return zerolog.ErrorLevel
	case types.FatalLevel:
		// WithLevel(Fatal) does not exit; MultiLogger owns process exit
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
