package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackthor84/WorkVouch-sub000/internal/multiverse"
)

func TestParseAction(t *testing.T) {
	a, ok, err := parseAction(strings.Fields("inject reference 0.5 acme strong hire"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, multiverse.InjectSignal{Kind: multiverse.KindReference, Weight: 0.5, Source: "acme", Note: "strong hire"}, a)

	a, _, err = parseAction(strings.Fields("mutate - 2"))
	require.NoError(t, err)
	assert.Equal(t, multiverse.MutateSignal{Weight: 2}, a)

	a, _, err = parseAction(strings.Fields("replay storm fraud_burst decay_shock"))
	require.NoError(t, err)
	rs := a.(multiverse.ReplayScenario)
	assert.Equal(t, "storm", rs.Name)
	assert.Len(t, rs.Actions, 2)

	_, ok, err = parseAction(strings.Fields("inject gossip"))
	assert.True(t, ok)
	assert.ErrorContains(t, err, "unknown kind")

	_, ok, err = parseAction(strings.Fields("fork"))
	assert.NoError(t, err)
	assert.False(t, ok, "universe commands are not simulation actions")
}

func TestREPLSession(t *testing.T) {
	m := multiverse.New()
	m.CreateUniverse("prime", nil, nil)
	export := filepath.Join(t.TempDir(), "mv.json")

	in := strings.NewReader(strings.Join([]string{
		"inject verification",
		"fork",
		"chaos fraud_burst",
		"delete nothing-here",
		"bogus",
		"export " + export,
		"quit",
		"inject fraud",
	}, "\n"))
	var out bytes.Buffer
	repl(m, in, &out)

	text := out.String()
	assert.Contains(t, text, "action=inject_signal")
	assert.Contains(t, text, "now active")
	assert.Contains(t, text, "[no effect: signal nothing-here not found]")
	assert.Contains(t, text, `unknown command "bogus"`)

	universes := m.List()
	require.Len(t, universes, 2)
	assert.Len(t, universes[0].Timeline, 2, "prime is untouched after the fork")
	assert.Len(t, universes[1].Timeline, 4, "commands after quit are not read")

	restored := multiverse.New()
	require.NoError(t, importFile(restored, export))
	assert.Equal(t, universes, restored.List())
}

func TestResolveIDPrefix(t *testing.T) {
	m := multiverse.New()
	u := m.CreateUniverse("prime", nil, nil)
	id, err := resolveID(m, u.ID[:6])
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	_, err = resolveID(m, "zzzz-none")
	assert.ErrorIs(t, err, multiverse.ErrUniverseNotFound)
}
