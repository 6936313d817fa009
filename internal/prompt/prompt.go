// Package prompt blocks until the user confirms that work may continue.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

const message = "Press any key to continue..."

// Confirmer waits for an external go-ahead.
type Confirmer interface {
	Confirm() error
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func() error

// Confirm implements Confirmer.
func (f ConfirmerFunc) Confirm() error { return f() }

// Immediate confirms without waiting.
type Immediate struct{}

// Confirm implements Confirmer.
func (Immediate) Confirm() error { return nil }

// Terminal waits for input on in after printing a message to out.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

// NewTerminal returns a Terminal reading from in and writing to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

// Confirm prints the prompt and blocks. On a terminal a single key is enough,
// otherwise a whole line is consumed. End of input also confirms.
func (t *Terminal) Confirm() error {
	fmt.Fprintln(t.out, message)

	if f, ok := t.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return readKey(f)
	}

	_, err := bufio.NewReader(t.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	return nil
}

func readKey(f *os.File) error {
	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("failed to switch terminal to raw mode: %w", err)
	}
	defer term.Restore(fd, state) //nolint:errcheck // best effort on the way out

	buf := make([]byte, 1)
	if _, err := f.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read key: %w", err)
	}
	return nil
}
