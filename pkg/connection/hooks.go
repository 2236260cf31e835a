package connection

// Logger is the logging surface the manager needs. The root package's
// Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Metrics is the metrics surface the manager reports to. The root
// package's Metrics satisfies it.
type Metrics interface {
	InvitationSent()
	InvitationResult(result string)
	PolicyRejection(direction, reason string)
	HandshakeCompleted(role string, seconds float64)
	HandshakeMessageDropped()
	DecryptionError()
	PendingFrameDropped()
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}
func (nopLogger) Error(string, ...any) {}

type nopMetrics struct{}

func (nopMetrics) InvitationSent() {}
func (nopMetrics) InvitationResult(string) {}
func (nopMetrics) PolicyRejection(string, string) {}
func (nopMetrics) HandshakeCompleted(string, float64) {}
func (nopMetrics) HandshakeMessageDropped() {}
func (nopMetrics) DecryptionError() {}
func (nopMetrics) PendingFrameDropped() {}
