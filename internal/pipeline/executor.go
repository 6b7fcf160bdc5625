package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// SpawnExitStatus is the chain exit status reported when a stage cannot be
// spawned at all (program not found, exec permission denied), following the
// shell's command-not-found convention.
const SpawnExitStatus = 127

// SpawnError reports a stage that could not be started. It is fatal to its
// chain; stages spawned before it are left to finish against closed pipe
// ends and are reaped in the background.
type SpawnError struct {
	Stage   int
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to run %s: %v", e.Program, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StdIO carries the opened outer endpoints for one chain. A nil file means
// the corresponding parent stream is inherited. The caller owns the files;
// Execute only dups them into the children.
type StdIO struct {
	Stdin, Stdout, Stderr *os.File
}

// Execute spawns every stage of the chain, left to right, connected by
// kernel pipes: stage i's stdout feeds stage i+1's stdin, stderr is never
// piped. All stages are started before any is waited on; the kernel's pipe
// buffering provides the flow control between them. The returned slice holds
// one exit status per stage, in stage order. The chain's overall status is
// the last stage's, per ChainStatus.
func Execute(chain Chain, stdio StdIO) ([]int, error) {
	n := len(chain.Stages)
	if n == 0 {
		return nil, fmt.Errorf("no command to execute")
	}

	env := mergedEnv(chain.Env)
	cmds := make([]*exec.Cmd, n)
	for i, st := range chain.Stages {
		cmd := exec.Command(st.Program, st.Args...)
		cmd.Dir = chain.Dir
		cmd.Env = env
		cmds[i] = cmd
	}

	// N-1 pipe pairs between N stages. readers[i]/writers[i] connect stage
	// i's stdout to stage i+1's stdin.
	readers := make([]*os.File, n-1)
	writers := make([]*os.File, n-1)
	closePipes := func() {
		for i := 0; i < n-1; i++ {
			if readers[i] != nil {
				readers[i].Close()
			}
			if writers[i] != nil {
				writers[i].Close()
			}
		}
	}
	for i := 0; i < n-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closePipes()
			return nil, fmt.Errorf("create pipe: %w", err)
		}
		readers[i], writers[i] = r, w
	}

	for i, cmd := range cmds {
		if i == 0 {
			cmd.Stdin = stdio.Stdin
			if cmd.Stdin == nil {
				cmd.Stdin = os.Stdin
			}
		} else {
			cmd.Stdin = readers[i-1]
		}
		if i == n-1 {
			cmd.Stdout = stdio.Stdout
			if cmd.Stdout == nil {
				cmd.Stdout = os.Stdout
			}
		} else {
			cmd.Stdout = writers[i]
		}
		cmd.Stderr = stdio.Stderr
		if cmd.Stderr == nil {
			cmd.Stderr = os.Stderr
		}
	}

	for i, cmd := range cmds {
		if err := cmd.Start(); err != nil {
			closePipes()
			// Stages 0..i-1 are already running; they will see EOF or
			// broken pipes and finish on their own. Reap them so they do
			// not linger as zombies while later chains run.
			for _, started := range cmds[:i] {
				go started.Wait()
			}
			return nil, &SpawnError{Stage: i, Program: chain.Stages[i].Program, Err: err}
		}
	}

	// The children hold dups of the pipe ends; the parent's copies must be
	// closed or downstream stages never see EOF.
	closePipes()

	statuses := make([]int, n)
	for i, cmd := range cmds {
		statuses[i] = exitStatus(cmd.Wait())
	}
	return statuses, nil
}

// ChainStatus is the chain's overall exit status: the last stage's, as in
// conventional pipe semantics. The other statuses are diagnostics only.
func ChainStatus(statuses []int) int {
	return statuses[len(statuses)-1]
}

// exitStatus maps a Wait error to an exit status. A signal-terminated stage
// reports 128+signal, the shell convention.
func exitStatus(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 1
}

// mergedEnv layers the overrides onto the inherited environment,
// last-write-wins on duplicate names. It returns nil (inherit as-is) when
// there are no overrides.
func mergedEnv(overrides []EnvVar) []string {
	if len(overrides) == 0 {
		return nil
	}
	env := os.Environ()
	index := make(map[string]int, len(env))
	for i, kv := range env {
		if p := strings.IndexByte(kv, '='); p >= 0 {
			index[kv[:p]] = i
		}
	}
	for _, ov := range overrides {
		kv := ov.Name + "=" + ov.Value
		if i, ok := index[ov.Name]; ok {
			env[i] = kv
		} else {
			index[ov.Name] = len(env)
			env = append(env, kv)
		}
	}
	return env
}
