package cli

import (
	"fmt"
	"strings"

	"github.com/tos-kamiya/o-o/internal/pipeline"
)

// Invocation is the parsed form of an o-o argument list: the three fd
// tokens, the trailing command line, and the option flags. Sub-invocations
// (an `o-o` stage heading a later chain) parse through the same code with
// tighter restrictions, applied by the caller.
type Invocation struct {
	Fds         [3]string
	CommandLine []string

	Env            []pipeline.EnvVar
	Dir            string
	ForceOverwrite bool
	KeepGoing      bool
	DebugInfo      bool

	// nil means not given; distinct from an explicitly empty string, which
	// disables the token.
	Pipe               *string
	Separator          *string
	TempdirPlaceholder *string

	ShowHelp    bool
	ShowVersion bool
}

// ParseInvocation scans argv (without the program name). Options and fd
// tokens may interleave until all three fds are collected; everything after
// that is the command line. `--` fills unset fds with `-` and ends option
// scanning; a 3-character combination of `-`, `.` and `=` in the first fd
// position is shorthand for the whole triple.
func ParseInvocation(argv []string) (*Invocation, error) {
	inv := &Invocation{}

	var fds []string
	i := 0
scan:
	for i < len(argv) && len(fds) < 3 {
		arg := argv[i]

		if len(fds) == 0 {
			if triple, ok := unpackShorthandFds(arg); ok {
				fds = triple
				i++
				break scan
			}
		}

		switch {
		case arg == "-h" || arg == "--help":
			inv.ShowHelp = true
			i++
		case arg == "-V" || arg == "--version":
			inv.ShowVersion = true
			i++
		case arg == "-F" || arg == "--force-overwrite":
			inv.ForceOverwrite = true
			i++
		case arg == "-k" || arg == "--keep-going":
			inv.KeepGoing = true
			i++
		case arg == "--debug-info":
			inv.DebugInfo = true
			i++
		case arg == "-e" || arg == "--env" || strings.HasPrefix(arg, "--env="):
			value, next, err := optionValue(argv, i, "--env")
			if err != nil {
				return nil, err
			}
			p := strings.IndexByte(value, '=')
			if p < 0 {
				return nil, fmt.Errorf("option -e's argument should be `VAR=VALUE`: %s", value)
			}
			inv.Env = append(inv.Env, pipeline.EnvVar{Name: value[:p], Value: value[p+1:]})
			i = next
		case arg == "-d" || arg == "--working-directory" || strings.HasPrefix(arg, "--working-directory="):
			value, next, err := optionValue(argv, i, "--working-directory")
			if err != nil {
				return nil, err
			}
			inv.Dir = value
			i = next
		case arg == "-p" || arg == "--pipe" || strings.HasPrefix(arg, "--pipe="):
			value, next, err := optionValue(argv, i, "--pipe")
			if err != nil {
				return nil, err
			}
			inv.Pipe = &value
			i = next
		case arg == "-s" || arg == "--separator" || strings.HasPrefix(arg, "--separator="):
			value, next, err := optionValue(argv, i, "--separator")
			if err != nil {
				return nil, err
			}
			inv.Separator = &value
			i = next
		case arg == "-t" || arg == "--tempdir-placeholder" || strings.HasPrefix(arg, "--tempdir-placeholder="):
			value, next, err := optionValue(argv, i, "--tempdir-placeholder")
			if err != nil {
				return nil, err
			}
			inv.TempdirPlaceholder = &value
			i = next
		case arg == "--":
			for len(fds) < 3 {
				fds = append(fds, "-")
			}
			i++
			break scan
		case arg != "-" && strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unknown option: %s", arg)
		default:
			fds = append(fds, arg)
			i++
		}
	}

	// A redundant `--` directly after the fd triple is tolerated.
	if i < len(argv) && argv[i] == "--" {
		i++
	}
	inv.CommandLine = append(inv.CommandLine, argv[i:]...)

	for len(fds) < 3 {
		fds = append(fds, "-")
	}
	copy(inv.Fds[:], fds)

	if inv.ShowHelp || inv.ShowVersion {
		return inv, nil
	}
	if len(inv.CommandLine) == 0 {
		return nil, fmt.Errorf("no command line specified")
	}
	return inv, nil
}

// optionValue extracts the value of an option at argv[i], given either as
// the next argument or attached with `=` to the long form. It returns the
// index of the argument after the option.
func optionValue(argv []string, i int, long string) (string, int, error) {
	arg := argv[i]
	if value, ok := strings.CutPrefix(arg, long+"="); ok {
		return value, i + 1, nil
	}
	if i+1 >= len(argv) {
		return "", 0, fmt.Errorf("option %s requires an argument", arg)
	}
	return argv[i+1], i + 2, nil
}

// unpackShorthandFds expands a 3-character token built from `-`, `.` and `=`
// (such as `---` or `-.=`) into the fd triple.
func unpackShorthandFds(arg string) ([]string, bool) {
	if len(arg) != 3 {
		return nil, false
	}
	triple := make([]string, 0, 3)
	for _, c := range arg {
		switch c {
		case '-', '.', '=':
			triple = append(triple, string(c))
		default:
			return nil, false
		}
	}
	return triple, true
}
