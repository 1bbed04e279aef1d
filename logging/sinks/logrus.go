package sinks

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"engain/server/logging"
)

// Logrus adapts routed events onto a structured logrus logger, for
// deployments that collect field-based logs.
type Logrus struct {
	logger *logrus.Logger
}

// NewLogrus constructs a logrus-backed sink writing JSON records to w.
func NewLogrus(w io.Writer) *Logrus {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.DebugLevel)
	return &Logrus{logger: logger}
}

// Write satisfies logging.Sink.
func (s *Logrus) Write(event logging.Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	fields := logrus.Fields{
		"tick":     event.Tick,
		"category": event.Category,
		"actor":    formatEntity(event.Actor),
	}
	if len(event.Targets) > 0 {
		targets := make([]string, 0, len(event.Targets))
		for _, target := range event.Targets {
			targets = append(targets, formatEntity(target))
		}
		fields["targets"] = targets
	}
	if event.Payload != nil {
		fields["payload"] = event.Payload
	}
	for k, v := range event.Extra {
		fields[k] = v
	}

	entry := s.logger.WithFields(fields)
	switch event.Severity {
	case logging.SeverityDebug:
		entry.Debug(string(event.Type))
	case logging.SeverityWarn:
		entry.Warn(string(event.Type))
	case logging.SeverityError:
		entry.Error(string(event.Type))
	default:
		entry.Info(string(event.Type))
	}
	return nil
}

// Close satisfies logging.Sink.
func (s *Logrus) Close(context.Context) error {
	return nil
}
