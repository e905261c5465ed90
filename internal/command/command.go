// Package command parses addressed chat lines into archive, status and abort
// commands.
package command

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/archivebot/internal/job"
)

// Subcommand tokens.
const (
	TokenArchive = "a"
	TokenStatus  = "s"
	TokenAbort   = "r"
)

// ErrEmpty is returned when an addressed line carries no tokens.
var ErrEmpty = errors.New("empty command")

// Command is one of Archive, Status or Abort.
type Command interface {
	// Name returns the subcommand token.
	Name() string
	isCommand()
}

// Archive requests a new archive job.
type Archive struct {
	URL         string
	Concurrency int
	Recursive   job.Policy
}

// Params converts the command into job parameters.
func (a Archive) Params() job.Params {
	return job.Params{URL: a.URL, Concurrency: a.Concurrency, Recursive: a.Recursive}
}

// Name implements Command.
func (Archive) Name() string { return TokenArchive }

func (Archive) isCommand() {}

// Status asks for the current state of a job.
type Status struct {
	ID string
}

// Name implements Command.
func (Status) Name() string { return TokenStatus }

func (Status) isCommand() {}

// Abort revokes a pending or running job.
type Abort struct {
	ID string
}

// Name implements Command.
func (Abort) Name() string { return TokenAbort }

func (Abort) isCommand() {}

// ParseError carries a human readable message and the single-line usage of
// the (sub)command that failed.
type ParseError struct {
	Message string
	Usage   string
}

// Error renders the chat reply form "<message> -- <usage>".
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s -- %s", e.Message, e.Usage)
}
