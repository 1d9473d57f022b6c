package manager

import "github.com/rs/zerolog"

// LogPublisher writes events to a structured logger. Faults and failures log
// at warn, everything else at info.
type LogPublisher struct {
	log *zerolog.Logger
}

func NewLogPublisher(l *zerolog.Logger) *LogPublisher {
	if l == nil {
		nop := zerolog.Nop()
		l = &nop
	}
	return &LogPublisher{log: l}
}

func (p *LogPublisher) Publish(e Event) {
	ev := p.log.Info()
	switch e.Name {
	case "load_failed", "runtime_fault", "unload_forced", "memory_pressure":
		ev = p.log.Warn()
	}
	if e.Model != "" {
		ev = ev.Str("model", e.Model)
	}
	ev.Fields(e.Fields).Str("event", e.Name).Msg("runtime event")
}
