package roundtable

import (
	"strings"
	"testing"

	"github.com/liliang-cn/roundtable/internal/domain"
)

func TestCheckConsensus(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"All points covered. " + domain.ConsensusMarker + " Final answer follows.", true},
		{domain.ConsensusMarker, true},
		{"no marker here", false},
		{"已达成共识", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := CheckConsensus(tt.text); got != tt.want {
			t.Errorf("CheckConsensus(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestBuildPrompt_FirstTurn(t *testing.T) {
	panel := testExperts(2)
	prompt := BuildPrompt(panel[0], panel, "Should we use Go?", nil, 1)

	if len(prompt) != 2 {
		t.Fatalf("prompt has %d messages, want 2", len(prompt))
	}
	if prompt[0].Role != domain.RoleSystem || prompt[0].Content != panel[0].SystemPrompt {
		t.Errorf("system message = %+v", prompt[0])
	}
	user := prompt[1].Content
	if prompt[1].Role != domain.RoleUser {
		t.Errorf("second message role = %q, want user", prompt[1].Role)
	}
	if !strings.HasPrefix(user, "User question: Should we use Go?") {
		t.Errorf("user content does not start with the question: %q", user)
	}
	if strings.Contains(user, transcriptHeader) {
		t.Errorf("first turn should have no transcript: %q", user)
	}
	if strings.Contains(user, "This is round") {
		t.Errorf("round 1 should not ask to deepen: %q", user)
	}
	if !strings.HasSuffix(user, closingPrompt) {
		t.Errorf("user content should end with the closing prompt: %q", user)
	}
}

func TestBuildPrompt_Transcript(t *testing.T) {
	panel := testExperts(2)
	transcript := []domain.Message{
		{ExpertID: "e1", Content: "use Go", Round: 1},
		{ExpertID: "e2", Content: "agreed", Round: 1},
		{ExpertID: "ghost", Content: "should be skipped", Round: 1},
		{ExpertID: "", Content: "user question", Round: 1},
		{ExpertID: "e1", Content: "still streaming", Round: 2, IsStreaming: true},
	}

	user := BuildPrompt(panel[1], panel, "q", transcript, 2)[1].Content

	for _, want := range []string{
		transcriptHeader,
		"Expert 1(Role 1) - Round 1: use Go",
		"Expert 2(Role 2) - Round 1: agreed",
		"This is round 2 of the discussion.",
	} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q:\n%s", want, user)
		}
	}
	for _, unwanted := range []string{"should be skipped", "user question", "still streaming"} {
		if strings.Contains(user, unwanted) {
			t.Errorf("prompt should not contain %q:\n%s", unwanted, user)
		}
	}

	first := strings.Index(user, "use Go")
	second := strings.Index(user, "agreed")
	deepen := strings.Index(user, "This is round 2")
	closing := strings.LastIndex(user, closingPrompt)
	if !(first < second && second < deepen && deepen < closing) {
		t.Errorf("prompt sections out of order:\n%s", user)
	}
}

func TestStart_PromptsIncludeEarlierTurns(t *testing.T) {
	sender := &scriptedSender{reply: echoReply}
	o := New(sender, testExperts(2), Config{})

	if err := o.Start(t.Context(), "q", 2, Callbacks{}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// second expert of round 1 sees the first expert's finalized answer
	if got := sender.prompts[1][1].Content; !strings.Contains(got, "Expert 1(Role 1) - Round 1: answer 1") {
		t.Errorf("turn 2 prompt = %q", got)
	}
	// first expert of round 2 sees both round 1 answers
	got := sender.prompts[2][1].Content
	if !strings.Contains(got, "Round 1: answer 1") || !strings.Contains(got, "Round 1: answer 2") {
		t.Errorf("turn 3 prompt = %q", got)
	}
	if strings.Contains(got, "answer 3") {
		t.Errorf("turn 3 prompt leaked its own answer: %q", got)
	}
}
