package audit

import repricer "github.com/yidyetebeje/circtek-buyback-sub001"

// NoopSink is a sink that does nothing.
type NoopSink struct{}

var _ repricer.AuditSink = (*NoopSink)(nil)

func (s *NoopSink) Record(repricer.AuditEntry) error { return nil }
