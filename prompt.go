package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/chzyer/readline"
)

// Prompter asks the user for input. Ctrl-C, Ctrl-D and closed input all
// return errCanceled.
type Prompter interface {
	Prompt(label, defaultText string) (string, error)
	Password(label string) (string, error)
}

// readlinePrompter prompts on a terminal through readline
type readlinePrompter struct {
	stdin  io.ReadCloser
	stdout io.Writer
}

func newReadlinePrompter(stdin io.Reader, stdout io.Writer) *readlinePrompter {
	return &readlinePrompter{stdin: io.NopCloser(stdin), stdout: stdout}
}

func (p *readlinePrompter) open(prompt string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          prompt,
		Stdin:           p.stdin,
		Stdout:          p.stdout,
		InterruptPrompt: "^C",
	})
}

func (p *readlinePrompter) Prompt(label, defaultText string) (string, error) {
	rl, err := p.open(label + " ")
	if err != nil {
		return "", fmt.Errorf("initializing prompt: %w", err)
	}
	defer rl.Close()

	line, err := rl.ReadlineWithDefault(defaultText)
	if err != nil {
		return "", promptError(err)
	}
	return strings.TrimSpace(line), nil
}

func (p *readlinePrompter) Password(label string) (string, error) {
	rl, err := p.open("")
	if err != nil {
		return "", fmt.Errorf("initializing prompt: %w", err)
	}
	defer rl.Close()

	secret, err := rl.ReadPassword(label + " ")
	if err != nil {
		return "", promptError(err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func promptError(err error) error {
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return errCanceled
	}
	return err
}

// promptForURL asks for the article URL. Empty input counts as canceled.
func promptForURL(p Prompter) (string, error) {
	url, err := p.Prompt("Paste the article URL:", "")
	if err != nil {
		return "", err
	}
	if url == "" {
		return "", fmt.Errorf("no URL entered: %w", errCanceled)
	}
	return url, nil
}

// clipboardReader returns the current clipboard text
type clipboardReader func() (string, error)

func systemClipboard() (string, error) {
	return clipboard.ReadAll()
}

// urlFromClipboard reads a URL from the clipboard, rejecting anything that
// is not an http(s) URL.
func urlFromClipboard(read clipboardReader) (string, error) {
	text, err := read()
	if err != nil {
		return "", fmt.Errorf("reading clipboard: %w", err)
	}
	u, err := ParseArticleURL(text)
	if err != nil {
		return "", &InvalidURLError{URL: "", Reason: "no valid http(s) URL in clipboard"}
	}
	return u.String(), nil
}
