package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

const passphraseFromPrompt = "-"

// resolvePassphrase returns arg unless it is "-", in which case the
// passphrase is read from in: without echo on a terminal, otherwise as a
// single line.
func resolvePassphrase(arg string, in *bufio.Reader, inFile io.Reader, out io.Writer) (string, error) {
	if arg != passphraseFromPrompt {
		return arg, nil
	}
	if file, ok := inFile.(*os.File); ok && isatty.IsTerminal(file.Fd()) {
		fmt.Fprint(out, "Agent passphrase: ")
		secret, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		return string(secret), nil
	}
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("read passphrase: no passphrase on stdin")
	}
	return line, nil
}
