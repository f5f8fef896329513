package llm

import (
	"slices"
	"strings"
	"testing"
)

func collect(t *testing.T, d *Decoder, chunks ...string) []Event {
	t.Helper()
	var events []Event
	for _, c := range chunks {
		for ev := range d.Feed([]byte(c)) {
			events = append(events, ev)
		}
	}
	return events
}

func deltas(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString(ev.Delta)
	}
	return b.String()
}

func TestDecoder_CompleteLines(t *testing.T) {
	var d Decoder
	events := collect(t, &d,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n"+
			"\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n")

	if got := deltas(events); got != "Hello" {
		t.Errorf("deltas = %q, want %q", got, "Hello")
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
}

func TestDecoder_LineSplitAcrossChunks(t *testing.T) {
	var d Decoder
	line := "data: {\"choices\":[{\"delta\":{\"content\":\"split\"}}]}\n"

	var events []Event
	for i := 0; i < len(line); i++ {
		events = append(events, collect(t, &d, line[i:i+1])...)
	}

	if got := deltas(events); got != "split" {
		t.Errorf("deltas = %q, want %q", got, "split")
	}
}

func TestDecoder_IgnoresMalformedAndForeignLines(t *testing.T) {
	var d Decoder
	events := collect(t, &d,
		": keep-alive comment\n",
		"event: message\n",
		"data: {not json}\n",
		"data: {\"choices\":[]}\n",
		"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\r\n",
	)

	if len(events) != 1 || events[0].Delta != "ok" {
		t.Errorf("events = %+v, want one delta %q", events, "ok")
	}
}

func TestDecoder_DoneSentinel(t *testing.T) {
	var d Decoder
	events := collect(t, &d, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: [DONE]\n")

	if len(events) != 2 {
		t.Fatalf("events = %+v, want 2", events)
	}
	if !events[1].Done {
		t.Errorf("last event Done = false, want true")
	}
}

func TestDecoder_FlushUnterminatedLine(t *testing.T) {
	var d Decoder
	events := collect(t, &d,
		"data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\" last\"}}]}",
	)
	if got := deltas(events); got != "first" {
		t.Fatalf("deltas before flush = %q, want %q", got, "first")
	}

	flushed := slices.Collect(d.Flush())
	if len(flushed) != 1 || flushed[0].Delta != " last" {
		t.Errorf("Flush() = %+v, want delta %q", flushed, " last")
	}
	if got := slices.Collect(d.Flush()); len(got) != 0 {
		t.Errorf("second Flush() = %+v, want nothing", got)
	}
}

func TestDecoder_EarlyBreakKeepsRemainingLines(t *testing.T) {
	var d Decoder
	input := "data: {\"choices\":[{\"delta\":{\"content\":\"1\"}}]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"2\"}}]}\n"

	for ev := range d.Feed([]byte(input)) {
		if ev.Delta != "1" {
			t.Fatalf("first event = %q, want %q", ev.Delta, "1")
		}
		break
	}

	rest := slices.Collect(d.Feed(nil))
	if len(rest) != 1 || rest[0].Delta != "2" {
		t.Errorf("remaining events = %+v, want delta %q", rest, "2")
	}
}

func TestDecoder_DropsInputAfterDone(t *testing.T) {
	var d Decoder
	events := collect(t, &d,
		"data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n"+
			"data: [DONE]\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"LEAK\"}}]}\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\"tail\"}}]}",
		"data: {\"choices\":[{\"delta\":{\"content\":\"later\"}}]}\n",
	)

	if len(events) != 2 || events[0].Delta != "a" || !events[1].Done {
		t.Fatalf("events = %+v, want delta %q then Done", events, "a")
	}
	if !d.Done() {
		t.Error("Done() = false after sentinel")
	}
	if got := slices.Collect(d.Flush()); len(got) != 0 {
		t.Errorf("Flush() after sentinel = %+v, want nothing", got)
	}
}

func TestDecoder_FlushStopsAtDone(t *testing.T) {
	var d Decoder
	collect(t, &d, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\ndata: [DONE]")

	flushed := slices.Collect(d.Flush())
	if len(flushed) != 1 || !flushed[0].Done {
		t.Errorf("Flush() = %+v, want a single Done event", flushed)
	}
}
