package domain

import "time"

// Chat roles understood by the upstream chat completion API
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of the messages array sent upstream
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message represents one entry of a roundtable transcript.
// An empty ExpertID marks the user's question.
type Message struct {
	ID          string    `json:"id"`
	ExpertID    string    `json:"expert_id,omitempty"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Round       int       `json:"round"`
	IsStreaming bool      `json:"is_streaming,omitempty"`
}

// IsUser reports whether the message is the user's question
func (m Message) IsUser() bool {
	return m.ExpertID == ""
}

// ChatHistory is a saved roundtable transcript
type ChatHistory struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
	ExpertPresetID string    `json:"expert_preset_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ChatSummary is a saved chat without its messages
type ChatSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	ExpertPresetID string    `json:"expert_preset_id,omitempty"`
	MessageCount   int       `json:"message_count"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RoundtableState is the observable progress of a discussion
type RoundtableState struct {
	IsDiscussing       bool `json:"is_discussing"`
	CurrentRound       int  `json:"current_round"`
	CurrentExpertIndex int  `json:"current_expert_index"`
	ConsensusReached   bool `json:"consensus_reached"`
	MaxRounds          int  `json:"max_rounds"`
	PromptTokens       int  `json:"prompt_tokens"`
}

// DefaultMaxRounds is used when a discussion is started without a round limit
const DefaultMaxRounds = 3

// DefaultRoundtableState returns the idle state
func DefaultRoundtableState() RoundtableState {
	return RoundtableState{
		CurrentRound: 1,
		MaxRounds:    DefaultMaxRounds,
	}
}

// StartDiscussionRequest is the request to start a roundtable discussion
type StartDiscussionRequest struct {
	Question  string `json:"question" binding:"required"`
	MaxRounds int    `json:"max_rounds,omitempty"`
}

// SaveChatRequest is the request to save the current transcript
type SaveChatRequest struct {
	Title          string `json:"title" binding:"required"`
	ExpertPresetID string `json:"expert_preset_id,omitempty"`
}

// RenameChatRequest is the request to change a saved chat's title
type RenameChatRequest struct {
	Title string `json:"title" binding:"required"`
}

// Discussion event types sent over SSE
const (
	EventExpertStart = "expert_start"
	EventExpertChunk = "expert_chunk"
	EventExpertEnd   = "expert_end"
	EventRoundEnd    = "round_end"
	EventSiteChange  = "site_change"
	EventComplete    = "complete"
	EventError       = "error"
)

// DiscussionEvent represents one event in the discussion SSE stream
type DiscussionEvent struct {
	Type         string `json:"type"`
	ExpertID     string `json:"expert_id,omitempty"`
	Round        int    `json:"round,omitempty"`
	Content      string `json:"content,omitempty"`
	Consensus    bool   `json:"consensus,omitempty"`
	SiteID       string `json:"site_id,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Stats represents system statistics
type Stats struct {
	TotalSites   int `json:"total_sites"`
	EnabledSites int `json:"enabled_sites"`
	HealthySites int `json:"healthy_sites"`
	TotalExperts int `json:"total_experts"`
	TotalPresets int `json:"total_presets"`
	TotalChats   int `json:"total_chats"`
}
