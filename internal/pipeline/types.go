package pipeline

import "github.com/tos-kamiya/o-o/internal/redirect"

// Stage is one child-process invocation within a chain.
type Stage struct {
	Program string
	Args    []string
}

// EnvVar is one VAR=VALUE override layered onto the inherited environment.
type EnvVar struct {
	Name, Value string
}

// Chain is an ordered run of stages connected stdout-to-stdin, sharing one
// set of outer endpoints. Only the first stage's stdin and the last stage's
// stdout bind to the outer endpoints; every stage's stderr does.
type Chain struct {
	Stages []Stage

	IO             redirect.Triple
	Env            []EnvVar
	Dir            string
	ForceOverwrite bool
}

// Plan is a full invocation: the chains to run in order and the policy for
// continuing past a failed one.
type Plan struct {
	Chains    []Chain
	KeepGoing bool
}

// Tokens configures the segmentation mini-language. An empty Pipe or
// Separator disables that token; the Placeholder is carried here so the
// three can be validated against each other.
type Tokens struct {
	Pipe        string
	Separator   string
	Placeholder string
}

// DefaultTokens are the built-in token strings.
var DefaultTokens = Tokens{Pipe: "I", Separator: "J", Placeholder: "T"}

// Render flattens a chain back to the argument-list form it was segmented
// from, reinserting the pipe token between stages.
func (c Chain) Render(t Tokens) []string {
	var out []string
	for i, st := range c.Stages {
		if i > 0 {
			out = append(out, t.Pipe)
		}
		out = append(out, st.Program)
		out = append(out, st.Args...)
	}
	return out
}
