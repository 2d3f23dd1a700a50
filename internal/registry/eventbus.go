package registry

// EventPublisher is notified of membership changes. It is independent of
// the per-client SyncRecord delivery path in Subscription: it exists so
// operators and tests can observe client-joined/client-left as an
// auditable stream.
type EventPublisher interface {
	PublishJoined(ClientSession)
	PublishLeft(ClientSession)
}

// NoopEvents discards all events. It is the default when no event bus is
// configured.
type NoopEvents struct{}

func (NoopEvents) PublishJoined(ClientSession) {}
func (NoopEvents) PublishLeft(ClientSession)   {}
