// Package redirect turns the three stream tokens of an invocation into
// endpoint descriptors. The token grammar:
//
//	-       inherit the parent's stream
//	.       /dev/null
//	=       merge with the sibling stream's resolved file
//	PATH    redirect to PATH; a leading + means append
//
// The descriptors carry no open file handles; the executor side opens and
// owns the files for the duration of a chain.
package redirect

import (
	"fmt"
	"os/exec"
	"strings"
)

// Kind classifies a redirection endpoint.
type Kind int

const (
	// Inherit leaves the stream connected to the parent's.
	Inherit Kind = iota
	// DevNull connects the stream to the null device.
	DevNull
	// Merge reuses the sibling stream's resolved file: stdout merges with
	// the stdin file, stderr merges with the stdout file.
	Merge
	// File connects the stream to a named file.
	File
)

// Spec describes one stream endpoint.
type Spec struct {
	Kind   Kind
	Path   string // only for File
	Append bool   // only for File
}

// Triple holds the endpoint descriptors for a chain's outer streams.
type Triple struct {
	Stdin, Stdout, Stderr Spec
}

// Error reports an invalid redirection request. It is always raised before
// any process of the offending chain is spawned.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func errorf(format string, a ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, a...)}
}

// ParseSpec classifies a single stream token. The + append prefix is
// stripped here, before any placeholder substitution of the remaining path.
func ParseSpec(token string) Spec {
	switch token {
	case "-":
		return Spec{Kind: Inherit}
	case ".":
		return Spec{Kind: DevNull}
	case "=":
		return Spec{Kind: Merge}
	}
	if rest, ok := strings.CutPrefix(token, "+"); ok {
		return Spec{Kind: File, Path: rest, Append: true}
	}
	return Spec{Kind: File, Path: token}
}

// ParseTriple classifies and validates the stdin/stdout/stderr tokens of one
// invocation. forceOverwrite is the invocation's force flag; it constrains
// which token combinations are legal.
func ParseTriple(stdin, stdout, stderr string, forceOverwrite bool) (Triple, error) {
	tokens := [3]string{stdin, stdout, stderr}

	for _, tok := range tokens {
		switch tok {
		case "+-", "+=", "+.":
			return Triple{}, errorf("not possible to use `-`, `=` or `.` in combination with `+`")
		case "":
			return Triple{}, errorf("empty redirection token")
		}
	}

	t := Triple{
		Stdin:  ParseSpec(stdin),
		Stdout: ParseSpec(stdout),
		Stderr: ParseSpec(stderr),
	}

	if t.Stdin.Kind == Merge {
		return Triple{}, errorf("can not specify `=` as stdin")
	}

	// The same file given for two streams silently clobbers itself; require
	// the explicit merge token instead.
	specs := [3]Spec{t.Stdin, t.Stdout, t.Stderr}
	for i := 0; i < len(specs); i++ {
		if specs[i].Kind != File {
			continue
		}
		for j := i + 1; j < len(specs); j++ {
			if specs[j].Kind == File && specs[j].Path == specs[i].Path {
				return Triple{}, errorf("explicitly use `=` when dealing with the same file: %s", specs[i].Path)
			}
		}
	}

	// A merge request needs a concrete sibling file to land on. A merge
	// chained onto another merge resolves transitively, so stderr `=` on top
	// of stdout `=` targets the stdin file.
	if t.Stdout.Kind == Merge && t.Stdin.Kind != File {
		return Triple{}, errorf("stdout `=` requires stdin to be a real file")
	}
	if t.Stderr.Kind == Merge {
		switch t.Stdout.Kind {
		case File:
		case Merge: // resolves to the stdin file, checked above
		default:
			return Triple{}, errorf("stderr `=` requires stdout to be a real file")
		}
	}

	// A forgotten fd argument tends to show up as a command name in the
	// stdout or stderr slot; catch that early.
	for _, tok := range tokens[1:] {
		if looksLikeCommand(tok) {
			return Triple{}, errorf("out/err looks a command: %s\n> (Use `--` to explicitly separate command from out/err)", tok)
		}
	}

	if forceOverwrite {
		if t.Stdin.Kind != File {
			return Triple{}, errorf("option --force-overwrite requires a real file name")
		}
		if t.Stdout.Kind != Merge {
			return Triple{}, errorf("option --force-overwrite is only valid when <stdout> is `=`")
		}
	}

	return t, nil
}

// looksLikeCommand reports whether a bare token resolves to an executable on
// PATH. Tokens containing a path separator are always taken as file paths.
func looksLikeCommand(token string) bool {
	switch token {
	case "-", "=", ".":
		return false
	}
	name := strings.TrimPrefix(token, "+")
	if strings.ContainsRune(name, '/') {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}
