package llm

import (
	"bytes"
	"encoding/json"
	"iter"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Event is one decoded item of a chat completion stream
type Event struct {
	Delta string
	Done  bool
}

// Decoder turns the raw bytes of a streamed chat completion into events.
// It holds only the partial line carried over between chunks. Once the
// terminal sentinel is decoded the buffer is dropped and further input is
// ignored.
type Decoder struct {
	buf  []byte
	done bool
}

// Feed appends chunk to the carry buffer and returns the events of every
// complete line. The sequence is single-pass: lines are consumed as they
// are yielded, and lines left unconsumed by an early break stay buffered.
func (d *Decoder) Feed(chunk []byte) iter.Seq[Event] {
	if !d.done {
		d.buf = append(d.buf, chunk...)
	}
	return func(yield func(Event) bool) {
		for !d.done {
			i := bytes.IndexByte(d.buf, '\n')
			if i < 0 {
				return
			}
			line := d.buf[:i]
			d.buf = d.buf[i+1:]
			if ev, ok := d.parse(line); ok {
				if !yield(ev) {
					return
				}
			}
		}
	}
}

// Flush parses everything left in the buffer, including an unterminated
// final line, and clears it
func (d *Decoder) Flush() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		rest := d.buf
		d.buf = nil
		for _, line := range bytes.Split(rest, []byte{'\n'}) {
			if d.done {
				return
			}
			if ev, ok := d.parse(line); ok {
				if !yield(ev) {
					return
				}
			}
		}
	}
}

// Done reports whether the terminal sentinel has been decoded
func (d *Decoder) Done() bool {
	return d.done
}

func (d *Decoder) parse(line []byte) (Event, bool) {
	ev, ok := parseLine(line)
	if ok && ev.Done {
		d.done = true
		d.buf = nil
	}
	return ev, ok
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// parseLine returns an event for a data line carrying content or for the
// terminal sentinel. Blank, foreign and malformed lines yield nothing.
func parseLine(raw []byte) (Event, bool) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Event{}, false
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == doneSentinel {
		return Event{Done: true}, true
	}

	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return Event{}, false
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return Event{}, false
	}
	return Event{Delta: chunk.Choices[0].Delta.Content}, true
}
