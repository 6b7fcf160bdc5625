package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tos-kamiya/o-o/internal/redirect"
	"github.com/tos-kamiya/o-o/internal/tempdir"
)

// redirectionExitStatus is reported when a chain's endpoints cannot be
// opened. It matches the pre-spawn usage-error status: nothing of the chain
// ran.
const redirectionExitStatus = 2

// Runner executes a plan's chains strictly in order. Stages within a chain
// run concurrently; chains never do. The temp directory manager is shared
// with the plan-building side and cleaned up here, exactly once, whatever
// path the run takes.
type Runner struct {
	Plan Plan
	Temp *tempdir.Manager
}

// Run executes every chain per the keep-going policy and returns the
// aggregate exit status: the failing chain's status when stopping early,
// otherwise that of the last chain actually run. Diagnostics are written to
// diag.
func (r *Runner) Run(diag io.Writer) int {
	defer func() {
		if err := r.Temp.Cleanup(); err != nil {
			fmt.Fprintf(diag, "o-o: warning: %v\n", err)
		}
	}()

	status := 0
	for i := range r.Plan.Chains {
		status = r.runChain(r.Plan.Chains[i], diag)
		if status != 0 && !r.Plan.KeepGoing {
			break
		}
	}
	return status
}

// runChain resolves the chain's endpoints to open files, executes the
// stages, and applies the merge-output commit policy. Endpoint files live
// exactly as long as the chain.
func (r *Runner) runChain(c Chain, diag io.Writer) int {
	fail := func(err error) int {
		fmt.Fprintf(diag, "o-o: %v\n", err)
		return redirectionExitStatus
	}

	var stdio StdIO
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	var stdinPath string
	switch c.IO.Stdin.Kind {
	case redirect.File:
		p, err := r.Temp.Substitute(c.IO.Stdin.Path)
		if err != nil {
			return fail(err)
		}
		stdinPath = p
		f, err := os.Open(p)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, f)
		stdio.Stdin = f
	case redirect.DevNull:
		f, err := os.Open(os.DevNull)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, f)
		stdio.Stdin = f
	}

	var mergeBuffer string
	switch c.IO.Stdout.Kind {
	case redirect.Merge:
		f, err := beginMergeOutput(stdinPath)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, f)
		stdio.Stdout = f
		mergeBuffer = f.Name()
	case redirect.File:
		f, err := r.openOutput(c.IO.Stdout)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, f)
		stdio.Stdout = f
	case redirect.DevNull:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, f)
		stdio.Stdout = f
	}

	switch c.IO.Stderr.Kind {
	case redirect.Merge:
		// Shares the stdout handle, so a merge-buffered stdout captures
		// stderr as well. Legality was checked at plan build.
		stdio.Stderr = stdio.Stdout
	case redirect.File:
		f, err := r.openOutput(c.IO.Stderr)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, f)
		stdio.Stderr = f
	case redirect.DevNull:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return fail(err)
		}
		opened = append(opened, f)
		stdio.Stderr = f
	}

	statuses, err := Execute(c, stdio)
	if err != nil {
		fmt.Fprintf(diag, "o-o: %v\n", err)
		if mergeBuffer != "" {
			os.Remove(mergeBuffer)
		}
		var spawnErr *SpawnError
		if errors.As(err, &spawnErr) {
			return SpawnExitStatus
		}
		return redirectionExitStatus
	}

	status := ChainStatus(statuses)
	if mergeBuffer != "" {
		// Children have exited; their writes to the buffer are complete.
		commit := ShouldCommit(status, c.ForceOverwrite)
		if err := finishMergeOutput(mergeBuffer, stdinPath, commit); err != nil {
			fmt.Fprintf(diag, "o-o: %v\n", err)
			if status == 0 {
				status = redirectionExitStatus
			}
		}
	}
	return status
}

// openOutput opens a File endpoint for writing, after placeholder
// substitution, truncating or appending per the endpoint's append flag.
func (r *Runner) openOutput(spec redirect.Spec) (*os.File, error) {
	p, err := r.Temp.Substitute(spec.Path)
	if err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if spec.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(p, flags, 0o666)
}
