package control

import (
	"errors"
	"fmt"
	"math"

	"github.com/bytedance/sonic"
)

// Source identifies the producer of a control message.
type Source string

const (
	// SourceEngine is the native engine core.
	SourceEngine Source = "oboe"
	// SourceCollector is the remote collector, relayed by the engine.
	SourceCollector Source = "collector"
	// SourceNotifier is the control channel itself.
	SourceNotifier Source = "notifier"
)

// Type discriminates messages within a source.
type Type string

const (
	TypeConfig        Type = "config"
	TypeKeepAlive     Type = "keep-alive"
	TypeLogging       Type = "logging"
	TypeRemoteConfig  Type = "remote-config"
	TypeRemoteWarning Type = "remote-warning"
	TypeError         Type = "error"
	TypeWarn          Type = "warn"
)

// Anomaly marks messages synthesized by the channel.
type Anomaly string

const (
	AnomalyNone     Anomaly = ""
	AnomalyParse    Anomaly = "parse"
	AnomalySequence Anomaly = "sequence"
)

// NoSeqNo is carried by synthesized messages.
const NoSeqNo int64 = -1

// Message is one control-plane notification.
type Message struct {
	SeqNo    int64
	Source   Source
	Type     Type
	Level    string
	Text     string
	Hostname string
	Port     int
	Warning  string

	// Err is set on notifier-internal messages.
	Err error
	// Anomaly is set when the channel synthesized the message.
	Anomaly Anomaly
	// Raw holds the undecoded line for peer messages.
	Raw []byte
}

// wireMessage is the JSON shape written by the engine.
type wireMessage struct {
	SeqNo    *int64 `json:"seqNo"`
	Source   Source `json:"source"`
	Type     Type   `json:"type"`
	Level    string `json:"level"`
	Message  string `json:"message"`
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Warning  string `json:"warning"`
}

var errMissingSeqNo = errors.New("missing seqNo")

// ParseMessage decodes one line of the wire format.
func ParseMessage(line []byte) (Message, error) {
	var w wireMessage
	if err := sonic.Unmarshal(line, &w); err != nil {
		return Message{}, fmt.Errorf("control: decode message: %w", err)
	}
	if w.SeqNo == nil {
		return Message{}, fmt.Errorf("control: decode message: %w", errMissingSeqNo)
	}
	if *w.SeqNo < 0 {
		return Message{}, fmt.Errorf("control: decode message: negative seqNo %d", *w.SeqNo)
	}
	// The next expected seqNo must stay representable.
	if *w.SeqNo == math.MaxInt64 {
		return Message{}, fmt.Errorf("control: decode message: seqNo %d out of range", *w.SeqNo)
	}
	return Message{
		SeqNo:    *w.SeqNo,
		Source:   w.Source,
		Type:     w.Type,
		Level:    w.Level,
		Text:     w.Message,
		Hostname: w.Hostname,
		Port:     w.Port,
		Warning:  w.Warning,
		Raw:      append([]byte(nil), line...),
	}, nil
}

// Encode renders a message in the wire format without the trailing newline.
func (m Message) Encode() ([]byte, error) {
	seq := m.SeqNo
	return sonic.Marshal(wireMessage{
		SeqNo:    &seq,
		Source:   m.Source,
		Type:     m.Type,
		Level:    m.Level,
		Message:  m.Text,
		Hostname: m.Hostname,
		Port:     m.Port,
		Warning:  m.Warning,
	})
}

// NewInternalError builds a notifier-internal error message.
func NewInternalError(err error, anomaly Anomaly) Message {
	return Message{
		SeqNo:   NoSeqNo,
		Source:  SourceNotifier,
		Type:    TypeError,
		Err:     err,
		Anomaly: anomaly,
	}
}
