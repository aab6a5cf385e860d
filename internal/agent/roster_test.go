package agent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/conversation"
)

func TestFromConfig_Defaults(t *testing.T) {
	r, err := FromConfig(config.Default())
	require.NoError(t, err)

	require.Equal(t, 3, r.Len())
	require.Equal(t, []conversation.Role{"researcher", "assembler", "critic"}, r.Roles())
	require.Equal(t, conversation.Role("critic"), r.Reviewer())
	require.Equal(t, []conversation.Role{"researcher", "assembler"}, r.Others())
	require.Equal(t, conversation.Role("researcher"), r.At(3).Role)

	a, ok := r.Lookup("assembler")
	require.True(t, ok)
	require.NotEmpty(t, a.Persona)

	require.True(t, r.Knows(conversation.Human))
	require.True(t, r.Knows("critic"))
	require.False(t, r.Knows("poet"))
}

func TestNewRoster_Errors(t *testing.T) {
	_, err := NewRoster(nil, "critic")
	require.True(t, apperr.IsConfiguration(err))

	_, err = NewRoster([]config.AgentConfig{{Role: "a"}}, "b")
	require.True(t, apperr.IsConfiguration(err))
}
