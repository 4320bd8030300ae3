//go:build !linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

var stdinReader = bufio.NewReader(os.Stdin)

func readInteractiveLine(prompt string) (string, error) {
	fmt.Print(prompt)
	s, err := stdinReader.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return trimTrailingNewline(s), nil
}

func trimTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}
