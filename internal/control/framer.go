package control

import (
	"bytes"
	"fmt"
)

// framer reassembles newline-terminated lines and checks their sequencing.
// It is owned by a single connection goroutine.
type framer struct {
	pending  []byte
	expected int64
	emit     func(Message)
}

func newFramer(emit func(Message)) *framer {
	return &framer{emit: emit}
}

// feed appends chunk and processes every complete line it now holds, in order.
func (f *framer) feed(chunk []byte) {
	f.pending = append(f.pending, chunk...)
	for {
		i := bytes.IndexByte(f.pending, '\n')
		if i < 0 {
			break
		}
		line := f.pending[:i]
		f.handleLine(line)
		f.pending = f.pending[i+1:]
	}
	if len(f.pending) == 0 {
		f.pending = nil
	}
}

// reset drops partial data and restarts sequencing for a new peer.
func (f *framer) reset() {
	f.pending = nil
	f.expected = 0
}

func (f *framer) handleLine(line []byte) {
	msg, err := ParseMessage(line)
	if err != nil {
		f.emit(NewInternalError(err, AnomalyParse))
		return
	}

	f.emit(msg)
	if msg.SeqNo != f.expected {
		f.emit(NewInternalError(
			fmt.Errorf("control: expected seqNo %d, found %d", f.expected, msg.SeqNo),
			AnomalySequence,
		))
	}
	f.expected = msg.SeqNo + 1
}
