package command

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/pflag"

	"github.com/JakeFAU/archivebot/internal/job"
)

// Parser turns the tokens following the bot's nick into a Command. The prog
// name only appears in usage strings.
type Parser struct {
	prog string
}

// NewParser returns a Parser whose usage lines are prefixed with "<nick>: ".
func NewParser(nick string) *Parser {
	return &Parser{prog: nick + ":"}
}

// Usage returns the single-line top-level usage.
func (p *Parser) Usage() string {
	return fmt.Sprintf("usage: %s {%s,%s,%s} ...", p.prog, TokenArchive, TokenStatus, TokenAbort)
}

// Parse validates tokens. It returns ErrEmpty for no tokens and a
// *ParseError for anything malformed.
func (p *Parser) Parse(tokens []string) (Command, error) {
	if len(tokens) == 0 {
		return nil, ErrEmpty
	}
	switch tokens[0] {
	case TokenArchive:
		return p.parseArchive(tokens[1:])
	case TokenStatus:
		id, err := p.parseID(TokenStatus, tokens[1:])
		if err != nil {
			return nil, err
		}
		return Status{ID: id}, nil
	case TokenAbort:
		id, err := p.parseID(TokenAbort, tokens[1:])
		if err != nil {
			return nil, err
		}
		return Abort{ID: id}, nil
	default:
		return nil, &ParseError{
			Message: fmt.Sprintf("argument command: invalid choice: '%s' (choose from '%s', '%s', '%s')",
				tokens[0], TokenArchive, TokenStatus, TokenAbort),
			Usage: p.Usage(),
		}
	}
}

func (p *Parser) archiveUsage() string {
	return fmt.Sprintf("usage: %s %s [--concurrency {1,2,3,4}] [--recursive {0,1,prefix}] URL", p.prog, TokenArchive)
}

func (p *Parser) idUsage(token string) string {
	return fmt.Sprintf("usage: %s %s UUID", p.prog, token)
}

func (p *Parser) parseArchive(args []string) (Command, error) {
	usage := p.archiveUsage()
	fs := newFlagSet(TokenArchive)
	concurrency := fs.IntP("concurrency", "j", job.MinConcurrency, "Parallel workers for this job")
	recursive := fs.StringP("recursive", "r", string(job.PolicyNone), "Enable recursion")
	if err := fs.Parse(args); err != nil {
		return nil, &ParseError{Message: flagMessage(err), Usage: usage}
	}

	if *concurrency < job.MinConcurrency || *concurrency > job.MaxConcurrency {
		return nil, &ParseError{
			Message: fmt.Sprintf("argument --concurrency/-j: invalid choice: %d (choose from 1, 2, 3, 4)", *concurrency),
			Usage:   usage,
		}
	}
	policy, err := job.ParsePolicy(*recursive)
	if err != nil {
		return nil, &ParseError{Message: "argument --recursive/-r: " + err.Error(), Usage: usage}
	}

	rest := fs.Args()
	switch {
	case len(rest) == 0:
		return nil, &ParseError{Message: "the following arguments are required: URL", Usage: usage}
	case len(rest) > 1:
		return nil, &ParseError{Message: "unrecognized arguments: " + strings.Join(rest[1:], " "), Usage: usage}
	}
	if !IsValidURL(rest[0]) {
		return nil, &ParseError{Message: fmt.Sprintf("argument URL: invalid URL value: '%s'", rest[0]), Usage: usage}
	}
	return Archive{URL: rest[0], Concurrency: *concurrency, Recursive: policy}, nil
}

func (p *Parser) parseID(token string, args []string) (string, error) {
	usage := p.idUsage(token)
	fs := newFlagSet(token)
	if err := fs.Parse(args); err != nil {
		return "", &ParseError{Message: flagMessage(err), Usage: usage}
	}
	rest := fs.Args()
	switch {
	case len(rest) == 0:
		return "", &ParseError{Message: "the following arguments are required: UUID", Usage: usage}
	case len(rest) > 1:
		return "", &ParseError{Message: "unrecognized arguments: " + strings.Join(rest[1:], " "), Usage: usage}
	}
	return rest[0], nil
}

// IsValidURL accepts absolute http and https URLs with a host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	return fs
}

func flagMessage(err error) string {
	if errors.Is(err, pflag.ErrHelp) {
		return "unrecognized arguments: --help"
	}
	return err.Error()
}
