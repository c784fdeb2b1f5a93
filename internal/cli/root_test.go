package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRememberRejectsUnknownTypeAndImportance(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		want string
	}{
		{"bad type", []string{"remember", "the gate fell", "--type", "player_action"}, "unknown entry type"},
		{"bad importance", []string{"remember", "the gate fell", "--importance", "critical"}, "unknown importance"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			root := NewRootCommand()
			root.SetArgs(tc.args)
			root.SilenceUsage = true
			root.SilenceErrors = true
			err := root.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestRootCommandHasExpectedSubcommands(t *testing.T) {
	root := NewRootCommand()

	want := []string{"stats", "search", "remember", "context", "ask", "export", "import", "clear"}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, got[name], "missing subcommand %s", name)
	}
}

func TestBuildProviderRejectsUnknown(t *testing.T) {
	o := &options{providerName: "gpt-nope"}
	_, err := o.buildProvider()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestBuildProviderKnownBackends(t *testing.T) {
	for _, name := range []string{"ollama", "claude"} {
		o := &options{providerName: name}
		p, err := o.buildProvider()
		require.NoError(t, err, name)
		assert.NotNil(t, p, name)
	}
}
