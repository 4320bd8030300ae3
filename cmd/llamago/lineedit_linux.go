//go:build linux

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// promptHistory holds the prompts entered in this session, oldest first.
var promptHistory []string

// lineEditor is a minimal raw-mode line editor: cursor movement, word
// motions and prompt history.
type lineEditor struct {
	prompt string
	out    io.Writer
	line   []byte
	cursor int

	histPos   int
	browsing  bool
	histDraft string
}

func (e *lineEditor) redraw() {
	_, _ = fmt.Fprintf(e.out, "\r%s%s\x1b[K", e.prompt, e.line)
	if e.cursor < len(e.line) {
		_, _ = fmt.Fprintf(e.out, "\r%s%s", e.prompt, e.line[:e.cursor])
	}
}

func (e *lineEditor) set(s string) {
	e.line = append(e.line[:0], s...)
	e.cursor = len(e.line)
	e.redraw()
}

func (e *lineEditor) insert(b byte) {
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = b
	e.cursor++
	e.redraw()
}

func (e *lineEditor) deleteRange(from, to int) {
	if from >= to {
		return
	}
	e.line = append(e.line[:from], e.line[to:]...)
	e.cursor = from
	e.redraw()
}

func (e *lineEditor) moveTo(pos int) {
	e.cursor = max(0, min(pos, len(e.line)))
	e.redraw()
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' }

// wordStart is the start of the word left of the cursor.
func (e *lineEditor) wordStart() int {
	i := e.cursor
	for i > 0 && isBlank(e.line[i-1]) {
		i--
	}
	for i > 0 && !isBlank(e.line[i-1]) {
		i--
	}
	return i
}

// wordEnd is the end of the word right of the cursor.
func (e *lineEditor) wordEnd() int {
	i := e.cursor
	for i < len(e.line) && isBlank(e.line[i]) {
		i++
	}
	for i < len(e.line) && !isBlank(e.line[i]) {
		i++
	}
	return i
}

func (e *lineEditor) historyUp() {
	if len(promptHistory) == 0 {
		return
	}
	if !e.browsing {
		e.histDraft = string(e.line)
		e.browsing = true
		e.histPos = len(promptHistory)
	}
	if e.histPos > 0 {
		e.histPos--
		e.set(promptHistory[e.histPos])
	}
}

func (e *lineEditor) historyDown() {
	if !e.browsing {
		return
	}
	if e.histPos < len(promptHistory)-1 {
		e.histPos++
		e.set(promptHistory[e.histPos])
		return
	}
	e.browsing = false
	e.histPos = len(promptHistory)
	e.set(e.histDraft)
}

// csi handles the final part of an ESC [ sequence.
func (e *lineEditor) csi(seq string) {
	switch seq {
	case "A":
		e.historyUp()
	case "B":
		e.historyDown()
	case "C":
		e.moveTo(e.cursor + 1)
	case "D":
		e.moveTo(e.cursor - 1)
	case "H":
		e.moveTo(0)
	case "F":
		e.moveTo(len(e.line))
	case "3~":
		e.deleteRange(e.cursor, min(e.cursor+1, len(e.line)))
	case "1;5C", "5C":
		e.moveTo(e.wordEnd())
	case "1;5D", "5D":
		e.moveTo(e.wordStart())
	case "3;5~":
		end := e.wordEnd()
		e.deleteRange(e.cursor, end)
	}
}

func readInteractiveLine(prompt string) (string, error) {
	if !stdinIsTTY() {
		return readPlainLine(prompt)
	}

	fd := int(os.Stdin.Fd())
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return readPlainLine(prompt)
	}
	raw := *saved
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, saved)
	}()

	e := &lineEditor{prompt: prompt, out: os.Stdout, histPos: len(promptHistory)}
	_, _ = fmt.Fprint(e.out, prompt)

	const (
		stateText = iota
		stateEsc
		stateCSI
	)
	state := stateText
	var seq strings.Builder
	var buf [16]byte
	for {
		n, err := os.Stdin.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			switch state {
			case stateEsc:
				state = stateText
				switch b {
				case '[':
					state = stateCSI
					seq.Reset()
				case 'b', 'B':
					e.moveTo(e.wordStart())
				case 'f', 'F':
					e.moveTo(e.wordEnd())
				case 127:
					e.deleteRange(e.wordStart(), e.cursor)
				}
				continue
			case stateCSI:
				seq.WriteByte(b)
				if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
					e.csi(seq.String())
					state = stateText
				}
				continue
			}

			switch b {
			case 27:
				state = stateEsc
			case '\r', '\n':
				_, _ = fmt.Fprint(e.out, "\r\n")
				out := string(e.line)
				if strings.TrimSpace(out) != "" {
					promptHistory = append(promptHistory, out)
				}
				return out, nil
			case 3: // Ctrl+C
				_, _ = fmt.Fprint(e.out, "^C\r\n")
				return "", io.EOF
			case 4: // Ctrl+D
				if len(e.line) == 0 {
					_, _ = fmt.Fprint(e.out, "\r\n")
					return "", io.EOF
				}
			case 127, 8:
				e.deleteRange(max(e.cursor-1, 0), e.cursor)
			case 1: // Ctrl+A
				e.moveTo(0)
			case 5: // Ctrl+E
				e.moveTo(len(e.line))
			case 21: // Ctrl+U
				e.deleteRange(0, e.cursor)
			case 23: // Ctrl+W
				e.deleteRange(e.wordStart(), e.cursor)
			default:
				if b >= 32 {
					e.insert(b)
				}
			}
		}
	}
}

var stdinReader = bufio.NewReader(os.Stdin)

func readPlainLine(prompt string) (string, error) {
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
