package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/go-ctap/walletbridge/pkg/credentials"
)

var errNoTerminal = errors.New("stdin is not a terminal")

// terminalPIN reads the PIN without echo from the controlling terminal.
type terminalPIN struct{}

func (terminalPIN) PromptPIN(_ context.Context, path string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errNoTerminal
	}

	fmt.Fprintf(os.Stderr, "Enter the PIN of the security key at %s: ", path)
	pin, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pin), nil
}

// terminalChooser lists the candidates on stderr and reads a 1-based index
// from stdin. An empty line cancels.
type terminalChooser struct{}

func (terminalChooser) ChooseCredential(_ context.Context, rpID string, candidates []credentials.Candidate) (int, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return 0, errNoTerminal
	}
	return chooseFrom(os.Stdin, os.Stderr, rpID, candidates)
}

func chooseFrom(in io.Reader, out io.Writer, rpID string, candidates []credentials.Candidate) (int, error) {
	fmt.Fprintf(out, "Several credentials exist for %s:\n", rpID)
	for i, c := range candidates {
		fmt.Fprintf(out, "  %d) %s\n", i+1, c.Label())
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Choose 1-%d (empty to cancel): ", len(candidates))

		line, err := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" {
			if err != nil && !errors.Is(err, io.EOF) {
				return 0, err
			}
			return 0, credentials.ErrSelectionCancelled
		}

		n, convErr := strconv.Atoi(line)
		if convErr == nil && n >= 1 && n <= len(candidates) {
			return n - 1, nil
		}
		if err != nil {
			return 0, credentials.ErrSelectionCancelled
		}
		fmt.Fprintf(out, "%q is not a choice\n", line)
	}
}
