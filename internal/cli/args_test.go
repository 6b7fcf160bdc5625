package cli

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-kamiya/o-o/internal/pipeline"
)

func mustParse(t *testing.T, argv ...string) *Invocation {
	t.Helper()
	inv, err := ParseInvocation(argv)
	require.NoError(t, err)
	return inv
}

func diffInv(t *testing.T, want, got *Invocation) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("invocation mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFds(t *testing.T) {
	got := mustParse(t, "a", "b", "c", "cmd")
	diffInv(t, &Invocation{
		Fds:         [3]string{"a", "b", "c"},
		CommandLine: []string{"cmd"},
	}, got)
}

func TestParseOmittedFds(t *testing.T) {
	tests := []struct {
		argv []string
		fds  [3]string
	}{
		{[]string{"a", "b", "--", "cmd"}, [3]string{"a", "b", "-"}},
		{[]string{"a", "--", "cmd"}, [3]string{"a", "-", "-"}},
		{[]string{"--", "cmd"}, [3]string{"-", "-", "-"}},
	}
	for _, tt := range tests {
		got := mustParse(t, tt.argv...)
		assert.Equal(t, tt.fds, got.Fds)
		assert.Equal(t, []string{"cmd"}, got.CommandLine)
	}
}

func TestParseShorthandFds(t *testing.T) {
	got := mustParse(t, "---", "cmd")
	assert.Equal(t, [3]string{"-", "-", "-"}, got.Fds)

	got = mustParse(t, "-.=", "cmd")
	assert.Equal(t, [3]string{"-", ".", "="}, got.Fds)
}

func TestParseRedundantSeparatorAfterFds(t *testing.T) {
	got := mustParse(t, "a", "b", "c", "--", "cmd", "x")
	assert.Equal(t, [3]string{"a", "b", "c"}, got.Fds)
	assert.Equal(t, []string{"cmd", "x"}, got.CommandLine)
}

func TestParseOptionsInterleavedWithFds(t *testing.T) {
	got := mustParse(t, "-e", "A=1", "in.txt", "-k", "out.txt", "-F", "err.txt", "cmd", "-x")
	diffInv(t, &Invocation{
		Fds:            [3]string{"in.txt", "out.txt", "err.txt"},
		CommandLine:    []string{"cmd", "-x"},
		Env:            []pipeline.EnvVar{{Name: "A", Value: "1"}},
		KeepGoing:      true,
		ForceOverwrite: true,
	}, got)
}

func TestParseOptionValueForms(t *testing.T) {
	want := "%%"
	got := mustParse(t, "--pipe", "%%", "---", "cat", "x", "%%", "wc")
	require.NotNil(t, got.Pipe)
	assert.Equal(t, want, *got.Pipe)

	got = mustParse(t, "--pipe=%%", "---", "cat")
	require.NotNil(t, got.Pipe)
	assert.Equal(t, want, *got.Pipe)

	got = mustParse(t, "-p", "%%", "---", "cat")
	require.NotNil(t, got.Pipe)
	assert.Equal(t, want, *got.Pipe)
}

func TestParseTokenOptions(t *testing.T) {
	got := mustParse(t, "-t", "HOGE", "-s", "%%", "---", "cat", "HOGE/x.txt")
	require.NotNil(t, got.TempdirPlaceholder)
	assert.Equal(t, "HOGE", *got.TempdirPlaceholder)
	require.NotNil(t, got.Separator)
	assert.Equal(t, "%%", *got.Separator)
	assert.Nil(t, got.Pipe)
	assert.Equal(t, []string{"cat", "HOGE/x.txt"}, got.CommandLine)
}

func TestParseEnvOrderPreserved(t *testing.T) {
	got := mustParse(t, "-e", "A=1", "-e", "B=x=y", "---", "cmd")
	assert.Equal(t, []pipeline.EnvVar{
		{Name: "A", Value: "1"},
		{Name: "B", Value: "x=y"},
	}, got.Env)
}

func TestParseWorkingDirectory(t *testing.T) {
	got := mustParse(t, "-d", "/tmp", "---", "cmd")
	assert.Equal(t, "/tmp", got.Dir)
}

func TestParseDebugInfo(t *testing.T) {
	got := mustParse(t, "--debug-info", "---", "cmd")
	assert.True(t, got.DebugInfo)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		argv []string
	}{
		{"no command line", []string{"a", "b", "c"}},
		{"nothing after separator", []string{"--"}},
		{"malformed env", []string{"-e", "NOEQUALS", "---", "cmd"}},
		{"unknown option", []string{"--frobnicate", "---", "cmd"}},
		{"option missing its value", []string{"-p"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInvocation(tt.argv)
			require.Error(t, err)
		})
	}
}

func TestParseOptionsAfterFdsBelongToCommand(t *testing.T) {
	got := mustParse(t, "---", "cmd", "-p")
	assert.Equal(t, []string{"cmd", "-p"}, got.CommandLine)
	assert.Nil(t, got.Pipe)
}

func TestParseHelpAndVersionShortCircuit(t *testing.T) {
	got := mustParse(t, "--help")
	assert.True(t, got.ShowHelp)

	got = mustParse(t, "-V")
	assert.True(t, got.ShowVersion)
}
