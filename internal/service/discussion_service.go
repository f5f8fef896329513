package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/roundtable/internal/domain"
	"github.com/liliang-cn/roundtable/internal/repository"
	"github.com/liliang-cn/roundtable/internal/roundtable"
	"go.uber.org/zap"
)

const eventBuffer = 64

// DiscussionService runs roundtable discussions and exposes them as event
// streams
type DiscussionService struct {
	orchestrator *roundtable.Orchestrator
	chats        *repository.ChatRepository
	maxRounds    int
	logger       *zap.Logger

	mu       sync.Mutex
	question *domain.Message
}

// NewDiscussionService creates a new discussion service. maxRounds is used
// when a request does not set one.
func NewDiscussionService(
	orchestrator *roundtable.Orchestrator,
	chats *repository.ChatRepository,
	maxRounds int,
	logger *zap.Logger,
) *DiscussionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRounds <= 0 {
		maxRounds = domain.DefaultMaxRounds
	}
	return &DiscussionService{
		orchestrator: orchestrator,
		chats:        chats,
		maxRounds:    maxRounds,
		logger:       logger,
	}
}

// Start begins a discussion and returns its events. The channel is closed
// when the discussion ends. Cancelling ctx stops the discussion.
func (s *DiscussionService) Start(ctx context.Context, req *domain.StartDiscussionRequest) (<-chan domain.DiscussionEvent, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrInvalidRequest)
	}
	rounds := req.MaxRounds
	if rounds <= 0 {
		rounds = s.maxRounds
	}

	events := make(chan domain.DiscussionEvent, eventBuffer)
	ready := make(chan error, 1)
	var once sync.Once
	started := func(err error) {
		once.Do(func() {
			if err == nil {
				s.setQuestion(question)
			}
			ready <- err
		})
	}

	emit := func(event domain.DiscussionEvent) {
		started(nil)
		select {
		case events <- event:
		case <-ctx.Done():
		}
	}

	cb := roundtable.Callbacks{
		OnExpertStart: func(expertID string, round, promptTokens int) {
			emit(domain.DiscussionEvent{Type: domain.EventExpertStart, ExpertID: expertID, Round: round, PromptTokens: promptTokens})
		},
		OnExpertChunk: func(expertID, chunk string) {
			emit(domain.DiscussionEvent{Type: domain.EventExpertChunk, ExpertID: expertID, Content: chunk})
		},
		OnExpertEnd: func(expertID, content string, round int) {
			emit(domain.DiscussionEvent{Type: domain.EventExpertEnd, ExpertID: expertID, Content: content, Round: round})
		},
		OnRoundEnd: func(round int, consensus bool) {
			emit(domain.DiscussionEvent{Type: domain.EventRoundEnd, Round: round, Consensus: consensus})
		},
		OnComplete: func(consensus bool, rounds int) {
			emit(domain.DiscussionEvent{Type: domain.EventComplete, Round: rounds, Consensus: consensus})
		},
		OnError: func(err error) {
			emit(domain.DiscussionEvent{Type: domain.EventError, Error: err.Error()})
		},
		OnSiteChange: func(site domain.Site, reason string) {
			emit(domain.DiscussionEvent{
				Type:     domain.EventSiteChange,
				SiteID:   site.ID,
				SiteName: site.Name,
				Content:  reason,
			})
		},
	}

	go func() {
		defer close(events)
		err := s.orchestrator.Start(ctx, question, rounds, cb)
		if err != nil {
			s.logger.Warn("discussion not started", zap.Error(err))
		}
		started(err)
	}()

	if err := <-ready; err != nil {
		return nil, err
	}
	return events, nil
}

func (s *DiscussionService) setQuestion(question string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.question = &domain.Message{
		ID:        uuid.New().String(),
		Content:   question,
		Timestamp: time.Now(),
		Round:     1,
	}
}

// Stop stops the running discussion
func (s *DiscussionService) Stop() {
	s.orchestrator.Stop()
}

// State returns the current discussion state
func (s *DiscussionService) State() domain.RoundtableState {
	return s.orchestrator.State()
}

// Messages returns the latest transcript, starting with the user's question
func (s *DiscussionService) Messages() []domain.Message {
	s.mu.Lock()
	question := s.question
	s.mu.Unlock()

	experts := s.orchestrator.Messages()
	messages := make([]domain.Message, 0, len(experts)+1)
	if question != nil {
		messages = append(messages, *question)
	}
	return append(messages, experts...)
}

// Save stores the finalized messages of the latest discussion as a chat
func (s *DiscussionService) Save(ctx context.Context, req *domain.SaveChatRequest) (*domain.ChatHistory, error) {
	var messages []domain.Message
	hasExpert := false
	for _, m := range s.Messages() {
		if m.IsStreaming {
			continue
		}
		if !m.IsUser() {
			hasExpert = true
		}
		messages = append(messages, m)
	}
	if !hasExpert {
		return nil, domain.ErrNoMessages
	}

	chat := &domain.ChatHistory{
		Title:          req.Title,
		Messages:       messages,
		ExpertPresetID: req.ExpertPresetID,
	}
	if err := s.chats.Create(chat); err != nil {
		return nil, fmt.Errorf("failed to save chat: %w", err)
	}

	s.logger.Info("chat saved", zap.String("chat_id", chat.ID), zap.Int("messages", len(messages)))
	return chat, nil
}

// Experts returns the current panel
func (s *DiscussionService) Experts() []domain.Expert {
	return s.orchestrator.Experts()
}

// Reconfigure applies a new panel and retry budget to later discussions
func (s *DiscussionService) Reconfigure(experts []domain.Expert, lb domain.LoadBalancerConfig) {
	s.orchestrator.Update(experts, roundtable.Config{MaxRetries: lb.RetryCount})
}
