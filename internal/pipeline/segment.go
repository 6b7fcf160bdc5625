package pipeline

import (
	"fmt"
	"strings"
)

// Validate checks the token configuration. Non-empty tokens must be mutually
// distinct and must not look like flags, or segmentation is ambiguous. This
// is a hard precondition checked before any argument is scanned.
func (t Tokens) Validate() error {
	named := []struct{ name, value string }{
		{"pipe", t.Pipe},
		{"separator", t.Separator},
		{"tempdir placeholder", t.Placeholder},
	}
	for i, a := range named {
		if a.value == "" {
			continue
		}
		if strings.HasPrefix(a.value, "-") {
			return fmt.Errorf("%s token %q collides with option syntax", a.name, a.value)
		}
		for _, b := range named[i+1:] {
			if b.value == a.value {
				return fmt.Errorf("%s and %s tokens are both %q", a.name, b.name, a.value)
			}
		}
	}
	return nil
}

// Segment splits the trailing argument list into chains of stages. An exact
// match to the pipe token starts a new stage within the current chain; an
// exact match to the separator token starts a new chain. Matching is
// positional string equality, so an argument equal to a token cannot be
// passed verbatim to a child (reconfigure the token instead).
func Segment(args []string, t Tokens) ([]Chain, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no command line specified")
	}

	chains := []Chain{{}}
	var stage []string

	closeStage := func(reason string) error {
		if len(stage) == 0 {
			return fmt.Errorf("empty command line (unexpected %s)", reason)
		}
		last := &chains[len(chains)-1]
		last.Stages = append(last.Stages, Stage{Program: stage[0], Args: stage[1:]})
		stage = nil
		return nil
	}

	for _, arg := range args {
		switch {
		case t.Separator != "" && arg == t.Separator:
			if err := closeStage("separator"); err != nil {
				return nil, err
			}
			chains = append(chains, Chain{})
		case t.Pipe != "" && arg == t.Pipe:
			if err := closeStage("pipe"); err != nil {
				return nil, err
			}
		default:
			stage = append(stage, arg)
		}
	}
	if err := closeStage("end of command line"); err != nil {
		return nil, err
	}

	return chains, nil
}
