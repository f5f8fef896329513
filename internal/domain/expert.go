package domain

import (
	"fmt"
	"time"
)

// ConsensusMarker is the literal the synthesizing expert emits to end a discussion
const ConsensusMarker = "【已达成共识】"

// Expert is one participant of the roundtable
type Expert struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	SystemPrompt string `json:"system_prompt"`
	Avatar       string `json:"avatar,omitempty"`
	Color        string `json:"color"`
}

// ExpertColors are the default color tags handed out to experts
var ExpertColors = []string{
	"#3B82F6", // blue
	"#10B981", // green
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // purple
}

// ExpertPreset is a named, saved expert panel
type ExpertPreset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Experts     []Expert  `json:"experts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreatePresetRequest is the request to save the current experts as a preset
type CreatePresetRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
}

// UpdatePresetRequest is the request to rename or describe a preset
type UpdatePresetRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ValidateExperts checks that a panel is usable for a discussion
func ValidateExperts(experts []Expert) error {
	if len(experts) == 0 {
		return fmt.Errorf("%w: at least one expert is required", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(experts))
	for _, e := range experts {
		if e.ID == "" {
			return fmt.Errorf("%w: expert id is required", ErrInvalidRequest)
		}
		if seen[e.ID] {
			return fmt.Errorf("%w: duplicate expert id %q", ErrInvalidRequest, e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// CloneExperts returns a copy of experts that shares no backing array
func CloneExperts(experts []Expert) []Expert {
	if experts == nil {
		return nil
	}
	out := make([]Expert, len(experts))
	copy(out, experts)
	return out
}

// CloneMessages returns a copy of messages that shares no backing array
func CloneMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	return out
}

// DefaultExperts returns the built-in panel. The last expert synthesizes
// the discussion and is the one expected to emit ConsensusMarker.
func DefaultExperts() []Expert {
	return []Expert{
		{
			ID:   "architect",
			Name: "Ada",
			Role: "Architect",
			SystemPrompt: `You are a senior software architect on a panel of experts.
Focus on structure, trade-offs, scalability and long-term maintainability.
Be concrete and concise. Challenge weak arguments from other experts.`,
			Color: ExpertColors[0],
		},
		{
			ID:   "product",
			Name: "Parker",
			Role: "Product Manager",
			SystemPrompt: `You are a pragmatic product manager on a panel of experts.
Focus on user value, scope, cost and time to market.
Be concrete and concise. Point out where technical ideas miss the user.`,
			Color: ExpertColors[1],
		},
		{
			ID:   "security",
			Name: "Sam",
			Role: "Security Engineer",
			SystemPrompt: `You are a security engineer on a panel of experts.
Focus on threats, failure modes and operational risk.
Be concrete and concise. Name the risks others ignore.`,
			Color: ExpertColors[2],
		},
		{
			ID:   "skeptic",
			Name: "Riley",
			Role: "Devil's Advocate",
			SystemPrompt: `You are the devil's advocate on a panel of experts.
Look for the strongest counter-argument to the emerging view.
Be concrete and concise. Concede points that survive your challenge.`,
			Color: ExpertColors[3],
		},
		{
			ID:   "moderator",
			Name: "Morgan",
			Role: "Moderator",
			SystemPrompt: `You are the moderator of a panel of experts.
Summarize where the experts agree and where they still disagree.
If the panel has converged on a recommendation, state it and end your reply
with the exact marker ` + ConsensusMarker + `.
Otherwise list the open questions the next round must settle.`,
			Color: ExpertColors[4],
		},
	}
}
