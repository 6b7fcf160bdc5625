// Package cli parses o-o invocations and drives a run end to end: config,
// segmentation, placeholder substitution, redirection validation, execution
// and the optional run log.
package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tos-kamiya/o-o/internal/audit"
	"github.com/tos-kamiya/o-o/internal/config"
	"github.com/tos-kamiya/o-o/internal/pipeline"
	"github.com/tos-kamiya/o-o/internal/redirect"
	"github.com/tos-kamiya/o-o/internal/tempdir"
)

// exitUsage is the exit status for argument, segmentation and resolution
// errors raised before any process spawns.
const exitUsage = 2

const usageText = `Run a sub-process and customize how it handles standard I/O.

Usage:
  o-o [options] <stdin> <stdout> <stderr> [--] <commandline>...
  o-o --help
  o-o --version

Options:
  <stdin>       File served as the standard input. Use ` + "`-`" + ` for no redirection
                and ` + "`.`" + ` for /dev/null.
  <stdout>      File served as the standard output. Use ` + "`-`" + ` for no redirection,
                ` + "`=`" + ` for the same file as the standard input, and ` + "`.`" + ` for /dev/null.
  <stderr>      File served as the standard error. Use ` + "`-`" + ` for no redirection,
                ` + "`=`" + ` for the same file as the standard output, and ` + "`.`" + ` for /dev/null.
                Prefix a file with ` + "`+`" + ` to append to it (akin to ` + "`>>`" + ` in shell).
  -e VAR=VALUE                      Set an environment variable.
  --pipe=STR, -p STR                String that connects subprocesses (` + "`|`" + ` in shell) [default: I].
  --separator=STR, -s STR           String that separates command lines (` + "`;`" + ` in shell) [default: J].
  --tempdir-placeholder=STR, -t STR     Placeholder string for a temporary directory [default: T].
  --force-overwrite, -F             Overwrite the file even if the subprocess fails.
                                    Valid only when <stdout> is ` + "`=`" + `.
  --keep-going, -k                  Continue running the remaining command lines even if
                                    one of them fails.
  --working-directory=DIR, -d DIR   Working directory.
  --debug-info                      Print how the command line was interpreted, then exit.
  --version, -V                     Version information.
  --help, -h                        Show this help message.

Token defaults can be changed in ~/.config/o-o/config.yaml.
`

// Run is the whole program: it returns the process exit status.
func Run(argv []string, version string) int {
	if len(argv) == 0 {
		fmt.Print(usageText)
		return 0
	}

	inv, err := ParseInvocation(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "o-o: %v\n", err)
		return exitUsage
	}
	if inv.ShowHelp {
		fmt.Print(usageText)
		return 0
	}
	if inv.ShowVersion {
		fmt.Printf("o-o %s\n", version)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "o-o: %v\n", err)
		return exitUsage
	}

	tokens := resolveTokens(inv, cfg)
	if err := tokens.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "o-o: %v\n", err)
		return exitUsage
	}

	temp := tempdir.NewManager(tokens.Placeholder)
	// The runner cleans up on every execution path; this covers the paths
	// that never reach it (debug-info, validation errors). Cleanup is
	// idempotent.
	defer func() {
		if err := temp.Cleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "o-o: warning: %v\n", err)
		}
	}()

	chains, substituted, err := segmentAndSubstitute(inv.CommandLine, tokens, temp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "o-o: %v\n", err)
		return exitUsage
	}

	if inv.DebugInfo {
		printDebugInfo(inv, tokens, chains, substituted)
		return 0
	}

	plan, err := assemblePlan(inv, chains)
	if err != nil {
		fmt.Fprintf(os.Stderr, "o-o: %v\n", err)
		return exitUsage
	}

	runner := &pipeline.Runner{Plan: *plan, Temp: temp}
	start := time.Now()
	status := runner.Run(os.Stderr)
	logRun(cfg, inv, plan, tokens, status, time.Since(start))
	return status
}

// resolveTokens layers the token settings: built-in defaults, then config,
// then command-line flags.
func resolveTokens(inv *Invocation, cfg *config.Config) pipeline.Tokens {
	t := pipeline.Tokens{
		Pipe:        cfg.Tokens.Pipe,
		Separator:   cfg.Tokens.Separator,
		Placeholder: cfg.Tokens.TempdirPlaceholder,
	}
	if inv.Pipe != nil {
		t.Pipe = *inv.Pipe
	}
	if inv.Separator != nil {
		t.Separator = *inv.Separator
	}
	if inv.TempdirPlaceholder != nil {
		t.Placeholder = *inv.TempdirPlaceholder
	}
	return t
}

// substitution records one placeholder rewrite, for --debug-info.
type substitution struct {
	from, to string
}

// segmentAndSubstitute splits the command line into chains and rewrites
// placeholder references in every stage argument, creating the temporary
// directory on the first actual reference.
func segmentAndSubstitute(args []string, tokens pipeline.Tokens, temp *tempdir.Manager) ([]pipeline.Chain, []substitution, error) {
	chains, err := pipeline.Segment(args, tokens)
	if err != nil {
		return nil, nil, err
	}

	var subs []substitution
	replace := func(s string) (string, error) {
		r, err := temp.Substitute(s)
		if err != nil {
			return "", err
		}
		if r != s {
			subs = append(subs, substitution{from: s, to: r})
		}
		return r, nil
	}

	for ci := range chains {
		for si := range chains[ci].Stages {
			st := &chains[ci].Stages[si]
			if st.Program, err = replace(st.Program); err != nil {
				return nil, nil, err
			}
			for ai := range st.Args {
				if st.Args[ai], err = replace(st.Args[ai]); err != nil {
					return nil, nil, err
				}
			}
		}
	}
	return chains, subs, nil
}

// assemblePlan binds endpoints, environment, working directory and the force
// flag to each chain. The first chain takes the invocation's fd triple; the
// 2nd and later chains run unredirected unless headed by an explicit `o-o`
// sub-invocation. All validation happens here, before anything spawns.
func assemblePlan(inv *Invocation, chains []pipeline.Chain) (*pipeline.Plan, error) {
	io, err := redirect.ParseTriple(inv.Fds[0], inv.Fds[1], inv.Fds[2], inv.ForceOverwrite)
	if err != nil {
		return nil, err
	}
	chains[0].IO = io
	chains[0].Env = inv.Env
	chains[0].Dir = inv.Dir
	chains[0].ForceOverwrite = inv.ForceOverwrite

	for i := 1; i < len(chains); i++ {
		if chains[i].Stages[0].Program == "o-o" {
			reformed, err := reformSubChain(chains[i], inv)
			if err != nil {
				return nil, err
			}
			chains[i] = reformed
			continue
		}
		chains[i].IO = redirect.Triple{} // all streams inherited
		chains[i].Env = inv.Env
		chains[i].Dir = inv.Dir
	}

	return &pipeline.Plan{Chains: chains, KeepGoing: inv.KeepGoing}, nil
}

// reformSubChain re-parses a chain whose first stage is `o-o` as a nested
// sub-invocation carrying its own fd triple and -e/-d/-F flags. Options that
// only make sense on the outer invocation are rejected.
func reformSubChain(c pipeline.Chain, outer *Invocation) (pipeline.Chain, error) {
	sub, err := ParseInvocation(c.Stages[0].Args)
	if err != nil {
		return pipeline.Chain{}, fmt.Errorf("sub-command: %w", err)
	}
	switch {
	case sub.DebugInfo:
		return pipeline.Chain{}, fmt.Errorf("invalid option used in sub-command: --debug-info")
	case sub.Pipe != nil:
		return pipeline.Chain{}, fmt.Errorf("invalid option used in sub-command: --pipe")
	case sub.Separator != nil:
		return pipeline.Chain{}, fmt.Errorf("invalid option used in sub-command: --separator")
	case sub.TempdirPlaceholder != nil:
		return pipeline.Chain{}, fmt.Errorf("invalid option used in sub-command: --tempdir-placeholder")
	case sub.ShowHelp || sub.ShowVersion:
		return pipeline.Chain{}, fmt.Errorf("invalid option used in sub-command: --help/--version")
	}

	io, err := redirect.ParseTriple(sub.Fds[0], sub.Fds[1], sub.Fds[2], sub.ForceOverwrite)
	if err != nil {
		return pipeline.Chain{}, fmt.Errorf("sub-command: %w", err)
	}

	stages := make([]pipeline.Stage, 0, len(c.Stages))
	stages = append(stages, pipeline.Stage{
		Program: sub.CommandLine[0],
		Args:    sub.CommandLine[1:],
	})
	stages = append(stages, c.Stages[1:]...)

	env := make([]pipeline.EnvVar, 0, len(outer.Env)+len(sub.Env))
	env = append(env, outer.Env...)
	env = append(env, sub.Env...)

	dir := sub.Dir
	if dir == "" {
		dir = outer.Dir
	}

	return pipeline.Chain{
		Stages:         stages,
		IO:             io,
		Env:            env,
		Dir:            dir,
		ForceOverwrite: sub.ForceOverwrite || outer.ForceOverwrite,
	}, nil
}

// printDebugInfo reports how the command line was interpreted, without
// running anything.
func printDebugInfo(inv *Invocation, tokens pipeline.Tokens, chains []pipeline.Chain, subs []substitution) {
	fmt.Printf("fds = %q\n", inv.Fds)
	fmt.Printf("command_line = %q\n", inv.CommandLine)
	fmt.Printf("force_overwrite = %v\n", inv.ForceOverwrite)
	fmt.Printf("keep_going = %v\n", inv.KeepGoing)
	fmt.Printf("envs = %v\n", inv.Env)
	fmt.Printf("working_directory = %q\n", inv.Dir)
	fmt.Printf("pipe = %q\n", tokens.Pipe)
	fmt.Printf("separator = %q\n", tokens.Separator)
	fmt.Printf("tempdir_placeholder = %q\n", tokens.Placeholder)

	fmt.Println()
	fmt.Println("target command lines:")
	for _, c := range chains {
		var parts []string
		for i, st := range c.Stages {
			if i > 0 {
				parts = append(parts, "|")
			}
			parts = append(parts, st.Program)
			parts = append(parts, st.Args...)
		}
		fmt.Printf("%s ;\n", strings.Join(parts, " "))
	}

	if len(subs) > 0 {
		fmt.Println()
		fmt.Println("tempdir-including arguments:")
		for _, s := range subs {
			fmt.Printf("%q -> %q\n", s.from, s.to)
		}
	}
}

// logRun appends the invocation to the run log when one is configured.
// Best-effort: a log failure is reported but never changes the run's status.
func logRun(cfg *config.Config, inv *Invocation, plan *pipeline.Plan, tokens pipeline.Tokens, status int, d time.Duration) {
	if cfg.Log.Path == "" {
		return
	}
	logger, err := audit.NewLogger(cfg.Log.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "o-o: warning: %v\n", err)
		return
	}
	commands := make([]string, len(plan.Chains))
	for i, c := range plan.Chains {
		commands[i] = strings.Join(c.Render(tokens), " ")
	}
	cwd, _ := os.Getwd()
	err = logger.Log(audit.Entry{
		Fds:        inv.Fds,
		Commands:   commands,
		ExitStatus: status,
		DurationMS: float64(d.Microseconds()) / 1000.0,
		Cwd:        cwd,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "o-o: warning: %v\n", err)
	}
}
