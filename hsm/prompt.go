package hsm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter covers the interactive decision points of the token workflow:
// waiting for an insertion, yes/no confirmations, and hidden secret entry.
// A terminal implementation is provided; tests script their own.
type Prompter interface {
	// AwaitToken shows a message and blocks until the user acknowledges
	// having inserted a token.
	AwaitToken(ctx context.Context, message string) error

	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, question string) (bool, error)

	// RequestPIN asks for the PIN of the token with the given serial,
	// without echo.
	RequestPIN(ctx context.Context, serial uint32) (string, error)

	// ChooseNewPIN asks for a fresh PIN, entered twice to catch typos.
	ChooseNewPIN(ctx context.Context, serial uint32) (string, error)

	// RequestSecret asks for an arbitrary hidden secret, e.g. a key file
	// passphrase.
	RequestSecret(ctx context.Context, label string) (string, error)
}

// TerminalPrompter prompts on an interactive terminal. Hidden entry uses
// golang.org/x/term so secrets are never echoed.
type TerminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int

	// ConfirmPINEntry makes RequestPIN ask for the PIN twice and
	// re-prompt on mismatch, catching a typo before it burns one of the
	// token's hardware retries.
	ConfirmPINEntry bool

	readPassword func(fd int) ([]byte, error)
}

// NewTerminalPrompter creates a prompter on stdin/stderr. Prompts go to
// stderr so piped stdout stays clean.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{
		in:           bufio.NewReader(os.Stdin),
		out:          os.Stderr,
		fd:           int(os.Stdin.Fd()),
		readPassword: term.ReadPassword,
	}
}

func (p *TerminalPrompter) AwaitToken(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Fprintf(p.out, "%s\nPress Enter to continue...", message)
	_, err := p.in.ReadString('\n')
	return err
}

func (p *TerminalPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "%s [y/N]: ", question)
	line, err := p.in.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func (p *TerminalPrompter) RequestPIN(ctx context.Context, serial uint32) (string, error) {
	if !p.ConfirmPINEntry {
		return p.readHidden(ctx, fmt.Sprintf("Enter PIN for token %d: ", serial))
	}
	return p.repeatedEntry(ctx, fmt.Sprintf("Enter PIN for token %d: ", serial), "Repeat the PIN: ")
}

func (p *TerminalPrompter) ChooseNewPIN(ctx context.Context, serial uint32) (string, error) {
	return p.repeatedEntry(ctx, fmt.Sprintf("Choose a new PIN for token %d: ", serial), "Repeat the new PIN: ")
}

// repeatedEntry reads a hidden secret twice until both entries agree.
func (p *TerminalPrompter) repeatedEntry(ctx context.Context, prompt, repeatPrompt string) (string, error) {
	for {
		pin, err := p.readHidden(ctx, prompt)
		if err != nil {
			return "", err
		}
		repeat, err := p.readHidden(ctx, repeatPrompt)
		if err != nil {
			return "", err
		}
		if pin == repeat {
			return pin, nil
		}
		fmt.Fprintln(p.out, "PINs do not match, try again.")
	}
}

func (p *TerminalPrompter) RequestSecret(ctx context.Context, label string) (string, error) {
	return p.readHidden(ctx, fmt.Sprintf("Enter %s: ", label))
}

func (p *TerminalPrompter) readHidden(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(p.out, prompt)
	secret, err := p.readPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return string(secret), nil
}
