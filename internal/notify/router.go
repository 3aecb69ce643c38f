package notify

import (
	"fmt"
	"strings"

	"github.com/GriffinCanCode/apm-agent/internal/control"
)

// InvalidCredentialMarker prefixes collector warnings about a rejected API key.
const InvalidCredentialMarker = "Invalid API key"

// Level is a log severity chosen for a notification.
type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Effect is a side effect requested by a notification.
type Effect int

const (
	EffectNone Effect = iota
	// EffectAgentDisabled means the collector refused the agent's credentials.
	EffectAgentDisabled
)

// Entry is one log call derived from a message.
type Entry struct {
	Level  Level
	Text   string
	Effect Effect
}

// engineLevels maps engine logging levels onto log severities.
var engineLevels = map[string]Level{
	"fatal":  LevelError,
	"error":  LevelError,
	"warn":   LevelWarn,
	"info":   LevelInfo,
	"low":    LevelInfo,
	"medium": LevelInfo,
	"high":   LevelInfo,
}

// Sink receives log calls. *zap.SugaredLogger satisfies it.
type Sink interface {
	Error(args ...interface{})
	Warn(args ...interface{})
	Info(args ...interface{})
	Debug(args ...interface{})
}

// Router applies classified notifications to a sink.
type Router struct {
	sink            Sink
	onAgentDisabled func(Entry)
	observers       []func(control.Message, []Entry)
}

// NewRouter creates a router writing to sink.
func NewRouter(sink Sink) *Router {
	return &Router{sink: sink}
}

// OnAgentDisabled registers the handler for EffectAgentDisabled entries.
func (r *Router) OnAgentDisabled(fn func(Entry)) {
	r.onAgentDisabled = fn
}

// Observe registers fn to receive every routed message with its entries.
// Register observers before routing starts.
func (r *Router) Observe(fn func(control.Message, []Entry)) {
	r.observers = append(r.observers, fn)
}

// Route classifies msg and performs the resulting log calls and effects.
func (r *Router) Route(msg control.Message) []Entry {
	entries := Classify(msg)
	for _, e := range entries {
		r.log(e)
		if e.Effect == EffectAgentDisabled && r.onAgentDisabled != nil {
			r.onAgentDisabled(e)
		}
	}
	for _, fn := range r.observers {
		fn(msg, entries)
	}
	return entries
}

func (r *Router) log(e Entry) {
	switch e.Level {
	case LevelError:
		r.sink.Error(e.Text)
	case LevelWarn:
		r.sink.Warn(e.Text)
	case LevelInfo:
		r.sink.Info(e.Text)
	default:
		r.sink.Debug(e.Text)
	}
}

// Classify maps a message to the log calls it should produce. It is pure and
// never panics; unknown shapes fall through to a single debug entry.
func Classify(msg control.Message) []Entry {
	switch msg.Source {
	case control.SourceEngine:
		switch msg.Type {
		case control.TypeKeepAlive:
			return nil
		case control.TypeLogging:
			return []Entry{{Level: engineLevel(msg.Level), Text: msg.Text}}
		case control.TypeConfig:
			return []Entry{
				{Level: LevelDebug, Text: fmt.Sprintf("notifier endpoint %s:%d", msg.Hostname, msg.Port)},
				{Level: LevelInfo, Text: "notifier config " + describe(msg)},
			}
		}
	case control.SourceCollector:
		switch msg.Type {
		case control.TypeRemoteConfig:
			// Remote configuration is not applied yet.
			return nil
		case control.TypeRemoteWarning:
			warning := msg.Warning
			if warning == "" {
				warning = msg.Text
			}
			if strings.HasPrefix(warning, InvalidCredentialMarker) {
				return []Entry{{
					Level:  LevelError,
					Text:   "agent disabled by collector: " + warning,
					Effect: EffectAgentDisabled,
				}}
			}
			return []Entry{{Level: LevelWarn, Text: warning}}
		}
	case control.SourceNotifier:
		switch msg.Type {
		case control.TypeError:
			return []Entry{{Level: LevelError, Text: errText(msg.Err)}}
		case control.TypeWarn:
			return []Entry{{Level: LevelWarn, Text: errText(msg.Err)}}
		}
	}
	return []Entry{{Level: LevelDebug, Text: "unexpected message type " + describe(msg)}}
}

func engineLevel(level string) Level {
	if l, ok := engineLevels[level]; ok {
		return l
	}
	return LevelInfo
}

func errText(err error) string {
	if err == nil {
		return "notifier reported an error without detail"
	}
	return err.Error()
}

func describe(msg control.Message) string {
	if len(msg.Raw) > 0 {
		return string(msg.Raw)
	}
	return fmt.Sprintf("{seqNo:%d source:%q type:%q}", msg.SeqNo, msg.Source, msg.Type)
}
