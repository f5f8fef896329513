package failover

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/llm"
	"github.com/liliang-cn/roundtable/internal/registry"
)

// fakeStreamer answers per site id: a configured error, or the configured
// deltas streamed through onChunk
type fakeStreamer struct {
	mu     sync.Mutex
	errs   map[string]error
	chunks map[string][]string
	calls  []string
	before func(siteID string)
}

func (f *fakeStreamer) Stream(ctx context.Context, site domain.Site, messages []domain.ChatMessage, onChunk llm.ChunkFunc) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, site.ID)
	err := f.errs[site.ID]
	chunks := f.chunks[site.ID]
	f.mu.Unlock()

	if f.before != nil {
		f.before(site.ID)
	}
	if ctx.Err() != nil {
		return "", llm.NewAbortedError(ctx.Err())
	}
	if err != nil {
		return "", err
	}
	if onChunk == nil {
		onChunk = func(string, bool) {}
	}
	for _, c := range chunks {
		onChunk(c, false)
	}
	onChunk("", true)
	return strings.Join(chunks, ""), nil
}

func newRegistry(t *testing.T, ids ...string) *registry.Registry {
	t.Helper()
	cfg := domain.DefaultLoadBalancerConfig()
	cfg.Strategy = domain.StrategyPriority
	cfg.MaxFailures = 1
	reg := registry.New(cfg)
	for _, id := range ids {
		if _, err := reg.AddSite(domain.Site{ID: id, Name: "Site " + id, BaseURL: "http://" + id, Model: "m", Enabled: true}); err != nil {
			t.Fatalf("AddSite(%s) error = %v", id, err)
		}
	}
	return reg
}

func TestSend_SuccessOnFirstSite(t *testing.T) {
	reg := newRegistry(t, "a", "b")
	streamer := &fakeStreamer{chunks: map[string][]string{"a": {"Hel", "lo"}}}

	var got []string
	result, err := NewController(reg, streamer, nil).Send(context.Background(), nil, func(delta string, done bool) {
		if !done {
			got = append(got, delta)
		}
	}, Options{})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result.Text != "Hello" || result.Site.ID != "a" {
		t.Errorf("Send() = %+v, want Hello from a", result)
	}
	if len(result.FailedAttempts) != 0 {
		t.Errorf("FailedAttempts = %v, want none", result.FailedAttempts)
	}
	if strings.Join(got, "") != "Hello" {
		t.Errorf("chunks = %q", got)
	}
	if h := reg.Health("a"); h.LastSuccess == nil || h.FailureCount != 0 {
		t.Errorf("health(a) = %+v, want reported success", h)
	}
}

func TestSend_FailsOverToNextSite(t *testing.T) {
	reg := newRegistry(t, "a", "b")
	upstream := llm.NewHTTPError(503, "", "")
	streamer := &fakeStreamer{
		errs:   map[string]error{"a": upstream},
		chunks: map[string][]string{"b": {"ok"}},
	}

	type change struct {
		site   string
		reason string
	}
	var changes []change
	result, err := NewController(reg, streamer, nil).Send(context.Background(), nil, nil, Options{
		OnSiteChange: func(site domain.Site, reason string) {
			changes = append(changes, change{site.ID, reason})
		},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if result.Site.ID != "b" || result.Text != "ok" {
		t.Errorf("Send() = %+v, want ok from b", result)
	}
	if len(result.FailedAttempts) != 1 || result.FailedAttempts[0].Site.ID != "a" || result.FailedAttempts[0].Error != upstream {
		t.Errorf("FailedAttempts = %+v", result.FailedAttempts)
	}
	if len(changes) != 1 || changes[0].site != "b" || changes[0].reason != "HTTP error 503" {
		t.Errorf("site changes = %+v", changes)
	}
	if h := reg.Health("a"); h.FailureCount != 1 {
		t.Errorf("health(a).FailureCount = %d, want 1", h.FailureCount)
	}
}

func TestSend_AllSitesFailedWithinRetryBudget(t *testing.T) {
	reg := newRegistry(t, "a", "b", "c", "d")
	streamer := &fakeStreamer{
		errs: map[string]error{
			"a": llm.NewNetworkError(errors.New("reset a")),
			"b": llm.NewNetworkError(errors.New("reset b")),
			"c": llm.NewNetworkError(errors.New("reset c")),
		},
		chunks: map[string][]string{"d": {"never reached"}},
	}

	_, err := NewController(reg, streamer, nil).Send(context.Background(), nil, nil, Options{MaxRetries: 3})

	if !llm.IsKind(err, llm.KindAllSitesFailed) {
		t.Fatalf("Send() error = %v, want KindAllSitesFailed", err)
	}
	if err.Error() != "all sites failed (3 attempts): reset c" {
		t.Errorf("error message = %q", err.Error())
	}
	if !llm.IsKind(errors.Unwrap(err), llm.KindNetwork) {
		t.Errorf("last error not reachable, Unwrap() = %v", errors.Unwrap(err))
	}
	if strings.Join(streamer.calls, ",") != "a,b,c" {
		t.Errorf("calls = %v, want a,b,c", streamer.calls)
	}
	for _, id := range []string{"a", "b", "c"} {
		if reg.Health(id).FailureCount != 1 {
			t.Errorf("health(%s) not reported as failed", id)
		}
	}
}

func TestSend_DefaultRetryBudget(t *testing.T) {
	reg := newRegistry(t, "a", "b", "c", "d")
	reg.SetConfig(domain.LoadBalancerConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 10, RecoveryTime: 60000, RetryCount: 3})
	streamer := &fakeStreamer{errs: map[string]error{
		"a": llm.NewHTTPError(500, "", ""),
		"b": llm.NewHTTPError(500, "", ""),
		"c": llm.NewHTTPError(500, "", ""),
		"d": llm.NewHTTPError(500, "", ""),
	}}

	_, err := NewController(reg, streamer, nil).Send(context.Background(), nil, nil, Options{MaxRetries: 0})
	if !llm.IsKind(err, llm.KindAllSitesFailed) {
		t.Fatalf("Send() error = %v, want KindAllSitesFailed", err)
	}
	if len(streamer.calls) != DefaultMaxRetries {
		t.Errorf("attempts = %d, want %d", len(streamer.calls), DefaultMaxRetries)
	}
}

func TestSend_NoAvailableSites(t *testing.T) {
	reg := newRegistry(t)
	streamer := &fakeStreamer{}

	_, err := NewController(reg, streamer, nil).Send(context.Background(), nil, nil, Options{})
	if !llm.IsKind(err, llm.KindNoAvailableSites) {
		t.Fatalf("Send() error = %v, want KindNoAvailableSites", err)
	}
	if len(streamer.calls) != 0 {
		t.Errorf("transport called %d times, want 0", len(streamer.calls))
	}
}

func TestSend_PoolExhaustedMidRetry(t *testing.T) {
	// a single site that goes unhealthy after its first failure
	reg := newRegistry(t, "a")
	streamer := &fakeStreamer{errs: map[string]error{"a": llm.NewHTTPError(500, "", "")}}

	_, err := NewController(reg, streamer, nil).Send(context.Background(), nil, nil, Options{MaxRetries: 3})
	if !llm.IsKind(err, llm.KindNoAvailableSites) {
		t.Fatalf("Send() error = %v, want KindNoAvailableSites", err)
	}
	if len(streamer.calls) != 1 {
		t.Errorf("attempts = %d, want 1", len(streamer.calls))
	}
}

func TestSend_AbortedBeforeStart(t *testing.T) {
	reg := newRegistry(t, "a")
	streamer := &fakeStreamer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewController(reg, streamer, nil).Send(ctx, nil, nil, Options{})
	if !llm.IsAborted(err) {
		t.Fatalf("Send() error = %v, want aborted", err)
	}
	if len(streamer.calls) != 0 {
		t.Errorf("transport called %d times, want 0", len(streamer.calls))
	}
}

func TestSend_AbortIsNotReportedAsFailure(t *testing.T) {
	reg := newRegistry(t, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	streamer := &fakeStreamer{before: func(string) { cancel() }}

	var changes int
	_, err := NewController(reg, streamer, nil).Send(ctx, nil, nil, Options{
		OnSiteChange: func(domain.Site, string) { changes++ },
	})

	if !llm.IsAborted(err) {
		t.Fatalf("Send() error = %v, want aborted", err)
	}
	if h := reg.Health("a"); h.FailureCount != 0 || h.LastFailure != nil {
		t.Errorf("aborted attempt reported as failure: %+v", h)
	}
	if changes != 0 || len(streamer.calls) != 1 {
		t.Errorf("aborted request should not fail over: changes=%d calls=%v", changes, streamer.calls)
	}
}
