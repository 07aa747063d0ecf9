package gateway

import (
	"github.com/rs/zerolog"

	"lightserve/internal/manager"
)

// logPublisher writes lifecycle events to the log and forwards them.
type logPublisher struct {
	log  zerolog.Logger
	next manager.EventPublisher
}

func newLogPublisher(log zerolog.Logger, next manager.EventPublisher) manager.EventPublisher {
	return &logPublisher{log: log, next: next}
}

func (p *logPublisher) Publish(e manager.Event) {
	lvl := zerolog.InfoLevel
	switch e.Name {
	case manager.EventStartFailed, manager.EventDrainTimeout:
		lvl = zerolog.WarnLevel
	}
	ev := p.log.WithLevel(lvl).Str("event", e.Name).Str("backend", e.Kind).Str("model", e.Model)
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("lifecycle")
	if p.next != nil {
		p.next.Publish(e)
	}
}
