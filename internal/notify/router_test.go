package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/apm-agent/internal/control"
)

func observedRouter() (*Router, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewRouter(zap.New(core).Sugar()), logs
}

func TestRouteKeepAliveIsSilent(t *testing.T) {
	router, logs := observedRouter()

	entries := router.Route(control.Message{Source: control.SourceEngine, Type: control.TypeKeepAlive})

	assert.Empty(t, entries)
	assert.Zero(t, logs.Len())
}

func TestRouteEngineLogging(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"fatal", zapcore.ErrorLevel},
		{"error", zapcore.ErrorLevel},
		{"warn", zapcore.WarnLevel},
		{"info", zapcore.InfoLevel},
		{"low", zapcore.InfoLevel},
		{"medium", zapcore.InfoLevel},
		{"high", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			router, logs := observedRouter()

			router.Route(control.Message{
				Source: control.SourceEngine,
				Type:   control.TypeLogging,
				Level:  tt.level,
				Text:   "engine says hi",
			})

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, tt.want, entry.Level)
			assert.Equal(t, "engine says hi", entry.Message)
		})
	}
}

func TestRouteEngineConfig(t *testing.T) {
	router, logs := observedRouter()
	raw := `{"seqNo":0,"source":"oboe","type":"config","hostname":"collector.example","port":443}`

	router.Route(control.Message{
		Source:   control.SourceEngine,
		Type:     control.TypeConfig,
		Hostname: "collector.example",
		Port:     443,
		Raw:      []byte(raw),
	})

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, zapcore.DebugLevel, all[0].Level)
	assert.Contains(t, all[0].Message, "collector.example:443")
	assert.Equal(t, zapcore.InfoLevel, all[1].Level)
	assert.Contains(t, all[1].Message, raw)
}

func TestRouteRemoteConfigIsPlaceholder(t *testing.T) {
	router, logs := observedRouter()

	entries := router.Route(control.Message{Source: control.SourceCollector, Type: control.TypeRemoteConfig})

	assert.Empty(t, entries)
	assert.Zero(t, logs.Len())
}

func TestRouteRemoteWarning(t *testing.T) {
	router, logs := observedRouter()
	var disabled []Entry
	router.OnAgentDisabled(func(e Entry) { disabled = append(disabled, e) })

	router.Route(control.Message{Source: control.SourceCollector, Type: control.TypeRemoteWarning, Warning: "rate limited"})
	router.Route(control.Message{Source: control.SourceCollector, Type: control.TypeRemoteWarning, Warning: InvalidCredentialMarker + ": abc"})

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, zapcore.WarnLevel, all[0].Level)
	assert.Equal(t, "rate limited", all[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, all[1].Level)
	assert.Contains(t, all[1].Message, "agent disabled")

	require.Len(t, disabled, 1)
	assert.Equal(t, EffectAgentDisabled, disabled[0].Effect)
}

func TestClassifyRemoteWarningText(t *testing.T) {
	tests := []struct {
		name   string
		msg    control.Message
		level  Level
		text   string
		effect Effect
	}{
		{
			name:  "warning field",
			msg:   control.Message{Warning: "rate limited"},
			level: LevelWarn,
			text:  "rate limited",
		},
		{
			name:  "message field",
			msg:   control.Message{Text: "rate limited"},
			level: LevelWarn,
			text:  "rate limited",
		},
		{
			name:  "warning field preferred",
			msg:   control.Message{Warning: "from warning", Text: "from message"},
			level: LevelWarn,
			text:  "from warning",
		},
		{
			name:   "credential rejection in message field",
			msg:    control.Message{Text: InvalidCredentialMarker + ": abc"},
			level:  LevelError,
			text:   "agent disabled by collector: " + InvalidCredentialMarker + ": abc",
			effect: EffectAgentDisabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.Source = control.SourceCollector
			tt.msg.Type = control.TypeRemoteWarning

			entries := Classify(tt.msg)

			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.text, entries[0].Text)
			assert.Equal(t, tt.effect, entries[0].Effect)
		})
	}
}

func TestRouteNotifierInternal(t *testing.T) {
	router, logs := observedRouter()

	router.Route(control.NewInternalError(errors.New("expected seqNo 1, found 2"), control.AnomalySequence))
	router.Route(control.Message{Source: control.SourceNotifier, Type: control.TypeWarn, Err: errors.New("slow peer")})

	all := logs.All()
	require.Len(t, all, 2)
	assert.Equal(t, zapcore.ErrorLevel, all[0].Level)
	assert.Equal(t, "expected seqNo 1, found 2", all[0].Message)
	assert.Equal(t, zapcore.WarnLevel, all[1].Level)
	assert.Equal(t, "slow peer", all[1].Message)
}

func TestRouteUnexpectedMessage(t *testing.T) {
	tests := []struct {
		name string
		msg  control.Message
	}{
		{"unknown source", control.Message{Source: "agent", Type: control.TypeConfig}},
		{"unknown engine type", control.Message{Source: control.SourceEngine, Type: "metrics"}},
		{"unknown collector type", control.Message{Source: control.SourceCollector, Type: control.TypeKeepAlive}},
		{"unknown notifier type", control.Message{Source: control.SourceNotifier, Type: "info"}},
		{"empty", control.Message{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, logs := observedRouter()

			assert.NotPanics(t, func() { router.Route(tt.msg) })

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, zapcore.DebugLevel, entry.Level)
			assert.Contains(t, entry.Message, "unexpected message type")
		})
	}
}

func TestClassifyNotifierErrorWithoutCause(t *testing.T) {
	entries := Classify(control.Message{Source: control.SourceNotifier, Type: control.TypeError})

	require.Len(t, entries, 1)
	assert.Equal(t, LevelError, entries[0].Level)
	assert.NotEmpty(t, entries[0].Text)
}

func TestRouterObservers(t *testing.T) {
	router, _ := observedRouter()
	var seen []control.Type
	var counts []int
	router.Observe(func(msg control.Message, entries []Entry) {
		seen = append(seen, msg.Type)
		counts = append(counts, len(entries))
	})

	router.Route(control.Message{Source: control.SourceEngine, Type: control.TypeKeepAlive})
	router.Route(control.Message{Source: control.SourceEngine, Type: control.TypeLogging, Text: "x"})

	assert.Equal(t, []control.Type{control.TypeKeepAlive, control.TypeLogging}, seen)
	assert.Equal(t, []int{0, 1}, counts)
}
