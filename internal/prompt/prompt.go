// Package prompt reads usernames and passwords from the terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/illarion/passvault/internal/crypto"
	"github.com/illarion/passvault/internal/secret"
	"golang.org/x/term"
)

var ErrMismatch = errors.New("passwords do not match")

// Prompter writes prompts to out and reads answers from in. Passwords are
// read without echo when in is a terminal, unless visible input is enabled.
type Prompter struct {
	in      *bufio.Reader
	out     io.Writer
	fd      int
	visible bool
}

// New returns a Prompter on f. visible echoes passwords as they are typed.
func New(f *os.File, out io.Writer, visible bool) *Prompter {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		fd = -1
	}
	return &Prompter{in: bufio.NewReader(f), out: out, fd: fd, visible: visible}
}

// NewReader returns a Prompter reading plain lines from r, for pipes and tests.
func NewReader(r io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(r), out: out, fd: -1}
}

// ReadLine prints prompt and returns the next line without its line ending.
func (p *Prompter) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadPassword prints prompt and reads a password. The caller wipes the result.
func (p *Prompter) ReadPassword(prompt string) ([]byte, error) {
	fmt.Fprint(p.out, prompt)

	if p.fd >= 0 && !p.visible {
		password, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out) // New line after password
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		return password, nil
	}

	line, err := p.in.ReadBytes('\n')
	defer secret.Wipe(line)
	if err != nil && (err != io.EOF || len(line) == 0) {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	n := len(line)
	for n > 0 && (line[n-1] == '\n' || line[n-1] == '\r') {
		n--
	}
	password := make([]byte, n)
	copy(password, line[:n])
	return password, nil
}

// ReadPasswordConfirm reads a password twice and ensures they match
func (p *Prompter) ReadPasswordConfirm(prompt string) ([]byte, error) {
	password1, err := p.ReadPassword(prompt)
	if err != nil {
		return nil, err
	}

	password2, err := p.ReadPassword("Confirm password: ")
	if err != nil {
		secret.Wipe(password1)
		return nil, err
	}
	defer secret.Wipe(password2)

	if !crypto.ConstantTimeCompare(password1, password2) {
		secret.Wipe(password1)
		return nil, ErrMismatch
	}
	return password1, nil
}

// FromEnv copies a password taken from the environment so it can be wiped
// independently of the string. Empty means unset.
func FromEnv(value string) []byte {
	if value == "" {
		return nil
	}
	return []byte(value)
}
