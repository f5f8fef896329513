package roundtable

import (
	"fmt"
	"strings"

	"github.com/liliang-cn/roundtable/internal/domain"
)

const (
	questionPrefix   = "User question: "
	transcriptHeader = "Here is what the other experts have said so far:"
	deepenFormat     = "This is round %d of the discussion. Build on the earlier rounds and deepen your reasoning."
	closingPrompt    = "Please give your professional view:"
)

// BuildPrompt renders the messages sent upstream for one expert turn. The
// transcript holds every finalized message so far; entries from experts
// outside the panel are skipped.
func BuildPrompt(expert domain.Expert, panel []domain.Expert, question string, transcript []domain.Message, round int) []domain.ChatMessage {
	byID := make(map[string]domain.Expert, len(panel))
	for _, e := range panel {
		byID[e.ID] = e
	}

	var b strings.Builder
	b.WriteString(questionPrefix)
	b.WriteString(question)
	b.WriteString("\n\n")

	if len(transcript) > 0 {
		b.WriteString(transcriptHeader)
		b.WriteString("\n\n")
		for _, msg := range transcript {
			if msg.IsUser() || msg.IsStreaming {
				continue
			}
			speaker, ok := byID[msg.ExpertID]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "%s(%s) - Round %d: %s\n\n", speaker.Name, speaker.Role, msg.Round, msg.Content)
		}
	}

	if round > 1 {
		b.WriteString("\n")
		fmt.Fprintf(&b, deepenFormat, round)
	}

	b.WriteString("\n\n")
	b.WriteString(closingPrompt)

	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: expert.SystemPrompt},
		{Role: domain.RoleUser, Content: b.String()},
	}
}

// CheckConsensus reports whether text carries the consensus marker
func CheckConsensus(text string) bool {
	return strings.Contains(text, domain.ConsensusMarker)
}
