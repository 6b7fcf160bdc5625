package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tos-kamiya/o-o/internal/redirect"
	"github.com/tos-kamiya/o-o/internal/tempdir"
)

func fileSpec(path string) redirect.Spec {
	return redirect.Spec{Kind: redirect.File, Path: path}
}

func runPlan(t *testing.T, plan Plan) (int, string) {
	t.Helper()
	var diag bytes.Buffer
	r := &Runner{Plan: plan, Temp: tempdir.NewManager("T")}
	status := r.Run(&diag)
	return status, diag.String()
}

func TestRunChainToFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	status, diag := runPlan(t, Plan{Chains: []Chain{{
		Stages: []Stage{
			{Program: "echo", Args: []string{"b", "a"}},
			{Program: "tr", Args: []string{" ", "\n"}},
			{Program: "sort"},
		},
		IO: redirect.Triple{Stdout: fileSpec(out)},
	}}})
	require.Equal(t, 0, status, "diagnostics: %s", diag)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(data))
}

func TestRunAppendOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(out, []byte("first\n"), 0o644))

	status, diag := runPlan(t, Plan{Chains: []Chain{{
		Stages: []Stage{{Program: "echo", Args: []string{"second"}}},
		IO: redirect.Triple{Stdout: redirect.Spec{
			Kind: redirect.File, Path: out, Append: true,
		}},
	}}})
	require.Equal(t, 0, status, "diagnostics: %s", diag)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
}

func TestRunMergeCommitOnSuccess(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(src, []byte("1st\n2nd\n3rd\n"), 0o644))

	status, diag := runPlan(t, Plan{Chains: []Chain{{
		Stages: []Stage{{Program: "head", Args: []string{"-n", "2"}}},
		IO: redirect.Triple{
			Stdin:  fileSpec(src),
			Stdout: redirect.Spec{Kind: redirect.Merge},
		},
	}}})
	require.Equal(t, 0, status, "diagnostics: %s", diag)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "1st\n2nd\n", string(data))
	assertNoMergeBuffers(t, dir)
}

func TestRunMergeDiscardOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.txt")
	original := []byte("1st\n2nd\n3rd\n")
	require.NoError(t, os.WriteFile(src, original, 0o644))

	status, _ := runPlan(t, Plan{Chains: []Chain{{
		Stages: []Stage{{Program: "sh", Args: []string{"-c", "echo partial; exit 7"}}},
		IO: redirect.Triple{
			Stdin:  fileSpec(src),
			Stdout: redirect.Spec{Kind: redirect.Merge},
		},
	}}})
	require.Equal(t, 7, status)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, original, data, "source must be byte-identical after a failed merge")
	assertNoMergeBuffers(t, dir)
}

func TestRunMergeForceOverwriteOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(src, []byte("1st\n2nd\n3rd\n"), 0o644))

	status, _ := runPlan(t, Plan{Chains: []Chain{{
		Stages:         []Stage{{Program: "sh", Args: []string{"-c", "echo partial; exit 7"}}},
		ForceOverwrite: true,
		IO: redirect.Triple{
			Stdin:  fileSpec(src),
			Stdout: redirect.Spec{Kind: redirect.Merge},
		},
	}}})
	require.Equal(t, 7, status)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "partial\n", string(data))
	assertNoMergeBuffers(t, dir)
}

func TestRunStderrMergesIntoMergeBuffer(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(src, []byte("ignored\n"), 0o644))

	status, _ := runPlan(t, Plan{Chains: []Chain{{
		Stages: []Stage{{Program: "sh", Args: []string{"-c", "echo out; echo err >&2"}}},
		IO: redirect.Triple{
			Stdin:  fileSpec(src),
			Stdout: redirect.Spec{Kind: redirect.Merge},
			Stderr: redirect.Spec{Kind: redirect.Merge},
		},
	}}})
	require.Equal(t, 0, status)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Contains(t, string(data), "out\n")
	assert.Contains(t, string(data), "err\n")
}

func TestRunStopsOnFailureWithoutKeepGoing(t *testing.T) {
	dir := t.TempDir()
	mark1 := filepath.Join(dir, "one.txt")
	mark3 := filepath.Join(dir, "three.txt")

	status, _ := runPlan(t, Plan{Chains: []Chain{
		{Stages: []Stage{{Program: "touch", Args: []string{mark1}}}},
		{Stages: []Stage{{Program: "program-that-does-not-exist-zz"}}},
		{Stages: []Stage{{Program: "touch", Args: []string{mark3}}}},
	}})
	assert.Equal(t, SpawnExitStatus, status)

	_, err := os.Stat(mark1)
	assert.NoError(t, err, "first chain ran")
	_, err = os.Stat(mark3)
	assert.True(t, os.IsNotExist(err), "third chain must never spawn")
}

func TestRunKeepGoingContinuesAndReportsLastChain(t *testing.T) {
	dir := t.TempDir()
	mark3 := filepath.Join(dir, "three.txt")

	status, _ := runPlan(t, Plan{
		KeepGoing: true,
		Chains: []Chain{
			{Stages: []Stage{{Program: "sh", Args: []string{"-c", "exit 9"}}}},
			{Stages: []Stage{{Program: "touch", Args: []string{mark3}}}},
		},
	})
	assert.Equal(t, 0, status, "aggregate status is the last chain actually run")

	_, err := os.Stat(mark3)
	assert.NoError(t, err)
}

func TestRunUnopenableStdin(t *testing.T) {
	status, diag := runPlan(t, Plan{Chains: []Chain{{
		Stages: []Stage{{Program: "cat"}},
		IO:     redirect.Triple{Stdin: fileSpec(filepath.Join(t.TempDir(), "missing.txt"))},
	}}})
	assert.Equal(t, 2, status)
	assert.Contains(t, diag, "o-o: ")
}

func TestRunDevNullEndpoints(t *testing.T) {
	status, diag := runPlan(t, Plan{Chains: []Chain{{
		Stages: []Stage{{Program: "sh", Args: []string{"-c", "cat; echo out; echo err >&2"}}},
		IO: redirect.Triple{
			Stdin:  redirect.Spec{Kind: redirect.DevNull},
			Stdout: redirect.Spec{Kind: redirect.DevNull},
			Stderr: redirect.Spec{Kind: redirect.DevNull},
		},
	}}})
	assert.Equal(t, 0, status)
	assert.Empty(t, diag)
}

func TestRunSubstitutesTempdirInRedirectionPaths(t *testing.T) {
	temp := tempdir.NewManager("T")
	r := &Runner{
		Plan: Plan{Chains: []Chain{
			{
				Stages: []Stage{{Program: "echo", Args: []string{"captured"}}},
				IO:     redirect.Triple{Stdout: fileSpec("T/mid.txt")},
			},
			{
				Stages: []Stage{{Program: "sh", Args: []string{"-c", "test -s \"$1\"", "-", "T/mid.txt"}}},
				IO:     redirect.Triple{},
			},
		}},
		Temp: temp,
	}

	// Pre-substitute the second chain's argument the way plan building does.
	var diag bytes.Buffer
	arg, err := temp.Substitute("T/mid.txt")
	require.NoError(t, err)
	r.Plan.Chains[1].Stages[0].Args[3] = arg
	created := temp.Path()

	status := r.Run(&diag)
	assert.Equal(t, 0, status, "diagnostics: %s", diag.String())

	_, err = os.Stat(created)
	assert.True(t, os.IsNotExist(err), "temporary directory must not outlive the run")
}

func assertNoMergeBuffers(t *testing.T, dir string) {
	t.Helper()
	leftovers, err := filepath.Glob(filepath.Join(dir, ".o-o-merge-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "no merge buffer may remain on disk")
}
