package termination

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/roundtable/internal/agent"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/conversation"
)

func msg(sender conversation.Role, content string) conversation.Message {
	return conversation.NewMessage(content, sender)
}

func filler(n int) []conversation.Message {
	roles := []conversation.Role{"researcher", "assembler", "critic"}
	out := make([]conversation.Message, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, msg(roles[i%3], fmt.Sprintf("working on point %d", i)))
	}
	return out
}

func newDetector() *Detector {
	return New(Limits{MaxMessages: 40, MinMessages: 15, MinTurns: 2, Window: 6},
		"critic", []conversation.Role{"researcher", "assembler"}, PhraseSetsFromConfig(config.DefaultPhraseSets()))
}

// converging returns a transcript that satisfies every convergence rule.
func converging() []conversation.Message {
	t := filler(14)
	return append(t,
		msg("critic", "This is solid. Anything else we should cover?"),
		msg("researcher", "I agree, nothing missing from my side"),
		msg("assembler", "Looks good to me"),
		msg("critic", "Great work everyone, we're done here"),
	)
}

func TestShouldStop_Converged(t *testing.T) {
	d := newDetector().ShouldStop(converging(), 3)
	require.Equal(t, Decision{Stop: true, Reason: ReasonConverged}, d)
}

func TestShouldStop_MessageFloor(t *testing.T) {
	short := []conversation.Message{
		msg("researcher", "I agree"),
		msg("assembler", "Looks good"),
		msg("critic", "Anything else? Great work, we're done"),
	}
	d := newDetector().ShouldStop(short, 5)
	require.False(t, d.Stop)
	require.Equal(t, ReasonTooFewMessages, d.Reason)
}

func TestShouldStop_MessageCapIgnoresContent(t *testing.T) {
	det := New(Limits{MaxMessages: 10, MinMessages: 15, MinTurns: 99, Window: 6},
		"critic", []conversation.Role{"researcher", "assembler"}, PhraseSetsFromConfig(config.DefaultPhraseSets()))

	d := det.ShouldStop(filler(10), 0)
	require.Equal(t, Decision{Stop: true, Reason: ReasonMessageCap}, d)

	d = det.ShouldStop(filler(9), 0)
	require.False(t, d.Stop)
}

func TestShouldStop_UnmetCriteria(t *testing.T) {
	tests := []struct {
		name   string
		turns  int
		mutate func([]conversation.Message) []conversation.Message
		want   Reason
	}{
		{
			name:  "too few turns",
			turns: 1,
			want:  ReasonTooFewTurns,
		},
		{
			name:  "newest message still has feedback",
			turns: 3,
			mutate: func(m []conversation.Message) []conversation.Message {
				m[len(m)-1] = msg("critic", "Great work, however the intro needs to change")
				return m
			},
			want: ReasonOpenFeedback,
		},
		{
			name:  "closing question outside window",
			turns: 3,
			mutate: func(m []conversation.Message) []conversation.Message {
				last := m[len(m)-4:]
				padded := append(filler(14), last[0])
				padded = append(padded, filler(6)...)
				return append(padded, last[1:]...)
			},
			want: ReasonNoClosingQuestion,
		},
		{
			name:  "closing question needs every phrase",
			turns: 3,
			mutate: func(m []conversation.Message) []conversation.Message {
				m[len(m)-4] = msg("critic", "Anything else we should cover")
				return m
			},
			want: ReasonNoClosingQuestion,
		},
		{
			name:  "one role has not agreed",
			turns: 3,
			mutate: func(m []conversation.Message) []conversation.Message {
				m[len(m)-2] = msg("assembler", "Still drafting the final section")
				return m
			},
			want: ReasonMissingAgreement,
		},
		{
			name:  "agreement from the wrong role does not count",
			turns: 3,
			mutate: func(m []conversation.Message) []conversation.Message {
				m[len(m)-2] = msg("researcher", "Looks good to me too")
				return m
			},
			want: ReasonMissingAgreement,
		},
		{
			name:  "no closing statement",
			turns: 3,
			mutate: func(m []conversation.Message) []conversation.Message {
				m[len(m)-1] = msg("critic", "Thanks all")
				return m
			},
			want: ReasonNoClosingStatement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transcript := converging()
			if tt.mutate != nil {
				transcript = tt.mutate(transcript)
			}
			d := newDetector().ShouldStop(transcript, tt.turns)
			require.False(t, d.Stop)
			require.Equal(t, tt.want, d.Reason)
		})
	}
}

func TestShouldStop_Empty(t *testing.T) {
	require.False(t, newDetector().ShouldStop(nil, 10).Stop)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Termination.MinMessages = 4
	cfg.Termination.MinTurns = 0

	transcript := []conversation.Message{
		msg("critic", "Anything else?"),
		msg("researcher", "agreed"),
		msg("assembler", "LGTM"),
		msg("critic", "That's a wrap, great work"),
	}
	roster, err := agent.FromConfig(cfg)
	require.NoError(t, err)
	require.True(t, FromConfig(cfg, roster).ShouldStop(transcript, 0).Stop)
}

func TestPhraseSetMatch(t *testing.T) {
	anySet := PhraseSet{Mode: MatchAny, Phrases: []string{"looks good", "lgtm"}}
	require.True(t, anySet.Match("LGTM!"))
	require.False(t, anySet.Match("not yet"))

	allSet := PhraseSet{Mode: MatchAll, Phrases: []string{"anything else", "?"}}
	require.True(t, allSet.Match("Anything else?"))
	require.False(t, allSet.Match("Anything else."))

	require.False(t, PhraseSet{Mode: MatchAll}.Match("anything"))
}
