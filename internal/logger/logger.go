package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kardianos/service"
	slogmulti "github.com/samber/slog-multi"
)

// Setup configures the global slog.Logger to write to both the service
// logger (event log / syslog) and the given file writer.
func Setup(svc service.Logger, logFile io.Writer) *slog.Logger {
	// File handler: text format for readability in the local log file.
	fileHandler := slog.NewTextHandler(logFile, nil)

	// Service handler: adapts slog to kardianos/service logging.
	svcHandler := &ServiceHandler{svc: svc}

	logger := slog.New(slogmulti.Fanout(fileHandler, svcHandler))
	slog.SetDefault(logger)
	return logger
}

// SetupCLI configures a plain stderr logger for interactive commands.
func SetupCLI(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// ServiceHandler adapts slog.Handler to service.Logger. It formats the log
// record (message + attributes) into a string and passes it to the
// underlying service logger.
type ServiceHandler struct {
	svc    service.Logger
	attrs  []slog.Attr
	groups []string
}

// Enabled always returns true; filtering is the service wrapper's job.
func (h *ServiceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle formats the record and writes it to the service logger.
func (h *ServiceHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.svc == nil {
		return nil
	}

	var buf bytes.Buffer
	// A temporary TextHandler formats the attributes. Time and level are
	// stripped because the event log / syslog adds its own.
	th := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	})

	var handler slog.Handler = th
	for _, g := range h.groups {
		handler = handler.WithGroup(g)
	}
	handler = handler.WithAttrs(h.attrs)

	if err := handler.Handle(ctx, r); err != nil {
		return err
	}

	msg := strings.TrimSpace(buf.String())

	switch r.Level {
	case slog.LevelError:
		return h.svc.Error(msg)
	case slog.LevelWarn:
		return h.svc.Warning(msg)
	default:
		return h.svc.Info(msg)
	}
}

// WithAttrs returns a new ServiceHandler with the given attributes appended.
func (h *ServiceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &ServiceHandler{
		svc:    h.svc,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

// WithGroup returns a new ServiceHandler with the given group appended.
func (h *ServiceHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &ServiceHandler{
		svc:    h.svc,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
