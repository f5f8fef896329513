// Package roundtable drives a multi-round discussion between a panel of
// experts. Turns run strictly one after another: each expert's prompt is
// built only from messages that have already been finalized.
package roundtable

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/failover"
	"github.com/liliang-cn/roundtable/internal/llm"
	"go.uber.org/zap"
)

// Sender streams one prompt with failover
type Sender interface {
	Send(ctx context.Context, messages []domain.ChatMessage, onChunk llm.ChunkFunc, opts failover.Options) (*failover.Result, error)
}

// TokenCounter estimates the token count of a chat prompt
type TokenCounter interface {
	CountMessages(messages []domain.ChatMessage) int
}

// Config holds the per-discussion tunables that can change between discussions
type Config struct {
	MaxRetries int
}

// Callbacks observe a discussion. Every field is optional. Callbacks run on
// the goroutine that called Start.
type Callbacks struct {
	OnExpertStart func(expertID string, round, promptTokens int)
	OnExpertChunk func(expertID, chunk string)
	OnExpertEnd   func(expertID, content string, round int)
	OnRoundEnd    func(round int, consensus bool)
	OnComplete    func(consensus bool, rounds int)
	OnError       func(err error)
	OnSiteChange  func(site domain.Site, reason string)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTokenCounter enables prompt size estimates. Without a counter every
// turn reports zero prompt tokens.
func WithTokenCounter(counter TokenCounter) Option {
	return func(o *Orchestrator) { o.counter = counter }
}

// Orchestrator runs one discussion at a time
type Orchestrator struct {
	sender  Sender
	logger  *zap.Logger
	counter TokenCounter

	mu          sync.Mutex
	experts     []domain.Expert
	cfg         Config
	state       domain.RoundtableState
	messages    []domain.Message
	currentSite *domain.Site
	cancel      context.CancelFunc
	gen         uint64
}

// New creates an orchestrator for the given panel
func New(sender Sender, experts []domain.Expert, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sender:  sender,
		logger:  zap.NewNop(),
		experts: domain.CloneExperts(experts),
		cfg:     cfg,
		state:   domain.DefaultRoundtableState(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Update replaces the panel and config. A running discussion keeps the
// snapshot it started with.
func (o *Orchestrator) Update(experts []domain.Expert, cfg Config) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.experts = domain.CloneExperts(experts)
	o.cfg = cfg
}

// Experts returns a copy of the current panel
func (o *Orchestrator) Experts() []domain.Expert {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.CloneExperts(o.experts)
}

// IsRunning reports whether a discussion is in progress
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.IsDiscussing
}

// State returns the current discussion state
func (o *Orchestrator) State() domain.RoundtableState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Messages returns a copy of the expert messages of the latest discussion,
// including the turn currently streaming
func (o *Orchestrator) Messages() []domain.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return domain.CloneMessages(o.messages)
}

// CurrentSite returns the site that served the latest turn
func (o *Orchestrator) CurrentSite() (domain.Site, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.currentSite == nil {
		return domain.Site{}, false
	}
	return *o.currentSite, true
}

// Stop cancels the running discussion. The orchestrator is idle as soon as
// Stop returns; the abandoned turn fires no more turn callbacks.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
	o.state.IsDiscussing = false
}

// Start runs a discussion of question for up to maxRounds rounds and blocks
// until it completes, fails or is stopped. It returns an error only when the
// discussion could not start; failures during the discussion go to
// OnError.
func (o *Orchestrator) Start(ctx context.Context, question string, maxRounds int, cb Callbacks) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}
	if maxRounds <= 0 {
		maxRounds = domain.DefaultMaxRounds
	}

	o.mu.Lock()
	if o.state.IsDiscussing {
		o.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	if len(o.experts) == 0 {
		o.mu.Unlock()
		return fmt.Errorf("%w: no experts configured", domain.ErrInvalidRequest)
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.gen++
	d := &discussion{
		o:         o,
		gen:       o.gen,
		ctx:       runCtx,
		experts:   domain.CloneExperts(o.experts),
		cfg:       o.cfg,
		question:  question,
		maxRounds: maxRounds,
		cb:        cb,
	}
	o.cancel = cancel
	o.state = domain.RoundtableState{IsDiscussing: true, CurrentRound: 1, MaxRounds: maxRounds}
	o.messages = nil
	o.currentSite = nil
	o.mu.Unlock()

	defer cancel()
	defer o.finish(d.gen)

	o.logger.Info("discussion started",
		zap.Int("experts", len(d.experts)),
		zap.Int("max_rounds", maxRounds),
	)
	d.run()
	return nil
}

// finish marks the discussion of generation gen as ended unless a newer one
// has already started
func (o *Orchestrator) finish(gen uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return
	}
	o.state.IsDiscussing = false
	o.cancel = nil
}

// discussion is the state of one Start call
type discussion struct {
	o         *Orchestrator
	gen       uint64
	ctx       context.Context
	experts   []domain.Expert
	cfg       Config
	question  string
	maxRounds int
	cb        Callbacks

	finalized []domain.Message
	consensus bool
	round     int
}

// activeLocked reports whether this discussion still owns the orchestrator
// and has not been stopped. The caller holds o.mu.
func (d *discussion) activeLocked() bool {
	return d.o.gen == d.gen && d.o.state.IsDiscussing
}

func (d *discussion) active() bool {
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	return d.activeLocked()
}

func (d *discussion) run() {
	logger := d.o.logger

	for d.round = 1; d.round <= d.maxRounds; d.round++ {
		for i, expert := range d.experts {
			if d.ctx.Err() != nil || !d.active() {
				d.stopped()
				return
			}

			text, err := d.turn(i, expert)
			if err != nil {
				if llm.IsAborted(err) || d.ctx.Err() != nil {
					logger.Info("discussion stopped",
						zap.Int("round", d.round),
						zap.String("expert_id", expert.ID),
					)
					d.stopped()
					return
				}
				logger.Error("discussion failed",
					zap.Int("round", d.round),
					zap.String("expert_id", expert.ID),
					zap.Error(err),
				)
				if d.active() && d.cb.OnError != nil {
					d.cb.OnError(err)
				}
				return
			}

			if i == len(d.experts)-1 {
				d.consensus = CheckConsensus(text)
			}
		}

		if !d.active() {
			d.stopped()
			return
		}
		d.o.mu.Lock()
		if d.activeLocked() {
			d.o.state.ConsensusReached = d.consensus
		}
		d.o.mu.Unlock()
		if d.cb.OnRoundEnd != nil {
			d.cb.OnRoundEnd(d.round, d.consensus)
		}

		if d.consensus || d.round == d.maxRounds {
			break
		}
		d.o.mu.Lock()
		if d.activeLocked() {
			d.o.state.CurrentRound = d.round + 1
		}
		d.o.mu.Unlock()
	}

	logger.Info("discussion completed",
		zap.Bool("consensus", d.consensus),
		zap.Int("rounds", d.round),
	)
	if d.cb.OnComplete != nil {
		d.cb.OnComplete(d.consensus, d.round)
	}
}

// stopped emits the single completion event of a cancelled discussion so
// stream consumers can close
func (d *discussion) stopped() {
	round := d.round
	if round > d.maxRounds {
		round = d.maxRounds
	}
	if d.cb.OnComplete != nil {
		d.cb.OnComplete(d.consensus, round)
	}
}

// turn runs one expert's turn and appends its finalized message
func (d *discussion) turn(index int, expert domain.Expert) (string, error) {
	streamingID := uuid.New().String()
	prompt := BuildPrompt(expert, d.experts, d.question, d.finalized, d.round)
	tokens := 0
	if d.o.counter != nil {
		tokens = d.o.counter.CountMessages(prompt)
	}

	d.o.mu.Lock()
	if !d.activeLocked() {
		d.o.mu.Unlock()
		return "", llm.NewAbortedError(context.Canceled)
	}
	d.o.state.CurrentRound = d.round
	d.o.state.CurrentExpertIndex = index
	d.o.state.PromptTokens += tokens
	d.o.messages = append(d.o.messages, domain.Message{
		ID:          streamingID,
		ExpertID:    expert.ID,
		Timestamp:   time.Now(),
		Round:       d.round,
		IsStreaming: true,
	})
	d.o.mu.Unlock()

	if d.cb.OnExpertStart != nil {
		d.cb.OnExpertStart(expert.ID, d.round, tokens)
	}
	if d.o.logger.Core().Enabled(zap.DebugLevel) {
		d.o.logger.Debug("expert prompt built",
			zap.String("expert_id", expert.ID),
			zap.Int("round", d.round),
			zap.Int("prompt_tokens", tokens),
		)
	}

	result, err := d.o.sender.Send(d.ctx, prompt, func(delta string, done bool) {
		if done {
			return
		}
		d.o.mu.Lock()
		if !d.activeLocked() {
			d.o.mu.Unlock()
			return
		}
		if n := len(d.o.messages); n > 0 && d.o.messages[n-1].ID == streamingID {
			d.o.messages[n-1].Content += delta
		}
		d.o.mu.Unlock()
		if d.cb.OnExpertChunk != nil {
			d.cb.OnExpertChunk(expert.ID, delta)
		}
	}, failover.Options{
		MaxRetries: d.cfg.MaxRetries,
		OnSiteChange: func(site domain.Site, reason string) {
			d.o.mu.Lock()
			if !d.activeLocked() {
				d.o.mu.Unlock()
				return
			}
			d.o.currentSite = &site
			d.o.mu.Unlock()
			if d.cb.OnSiteChange != nil {
				d.cb.OnSiteChange(site, reason)
			}
		},
	})
	if err != nil {
		d.dropStreaming(streamingID)
		return "", err
	}

	msg := domain.Message{
		ID:        uuid.New().String(),
		ExpertID:  expert.ID,
		Content:   result.Text,
		Timestamp: time.Now(),
		Round:     d.round,
	}

	d.o.mu.Lock()
	if !d.activeLocked() {
		d.o.mu.Unlock()
		return "", llm.NewAbortedError(context.Canceled)
	}
	site := result.Site
	d.o.currentSite = &site
	if n := len(d.o.messages); n > 0 && d.o.messages[n-1].ID == streamingID {
		d.o.messages[n-1] = msg
	} else {
		d.o.messages = append(d.o.messages, msg)
	}
	d.o.mu.Unlock()

	d.finalized = append(d.finalized, msg)
	if d.cb.OnExpertEnd != nil {
		d.cb.OnExpertEnd(expert.ID, result.Text, d.round)
	}
	return result.Text, nil
}

// dropStreaming removes the placeholder of a turn that did not finish
func (d *discussion) dropStreaming(id string) {
	d.o.mu.Lock()
	defer d.o.mu.Unlock()
	if d.o.gen != d.gen {
		return
	}
	if n := len(d.o.messages); n > 0 && d.o.messages[n-1].ID == id {
		d.o.messages = d.o.messages[:n-1]
	}
}
