package aesgcm

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PromptPassphrase reads a passphrase from the terminal without echo.
// It fails when stdin is not a terminal, unattended runs have to supply
// the passphrase through configuration.
func PromptPassphrase() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal, configure a passphrase instead")
	}
	fmt.Fprint(os.Stderr, "Enter encryption passphrase: ")
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}
