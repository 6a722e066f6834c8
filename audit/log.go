package audit

import (
	"log/slog"

	repricer "github.com/yidyetebeje/circtek-buyback-sub001"
)

// LogSink writes admission decisions to a slog.Logger.
type LogSink struct {
	Logger *slog.Logger
}

var _ repricer.AuditSink = (*LogSink)(nil)

// NewLogSink creates a LogSink with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Record(e repricer.AuditEntry) error {
	if e.Err != nil {
		s.Logger.Warn("admission",
			"endpoint", e.Endpoint,
			"priority", e.Priority.String(),
			"admission", string(e.Admission),
			"http_status", e.HTTPStatus,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Err,
		)
		return nil
	}
	s.Logger.Info("admission",
		"endpoint", e.Endpoint,
		"priority", e.Priority.String(),
		"admission", string(e.Admission),
		"http_status", e.HTTPStatus,
		"duration_ms", e.Duration.Milliseconds(),
	)
	return nil
}
