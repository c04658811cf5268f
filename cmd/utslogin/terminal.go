package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/unimate/utslogin/flow"
)

var errAborted = errors.New("login aborted")

// terminalSession renders a flow on a line-oriented terminal. It is the
// flow's Notifier, FocusController and Navigator.
type terminalSession struct {
	in     *bufio.Reader
	out    io.Writer
	domain string

	focus     int
	navigated string
	lastPhase flow.Phase

	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

func newTerminalSession(in io.Reader, out io.Writer, domain string) *terminalSession {
	return &terminalSession{
		in:        bufio.NewReader(in),
		out:       out,
		domain:    domain,
		lastPhase: flow.AwaitingAddress,
	}
}

func (s *terminalSession) Notify(n flow.Notice) {
	fmt.Fprintf(s.out, "\n[%s] %s\n\n", n.Title, n.Message)
}

func (s *terminalSession) RequestFocus(i int) {
	s.focus = i
}

func (s *terminalSession) NavigateTo(screen string) error {
	s.navigated = screen
	fmt.Fprintf(s.out, "Signed in. Continuing to %s.\n", screen)
	return nil
}

// Run drives f until it navigates away, the input ends, or ctx is done.
// The last two return errAborted.
func (s *terminalSession) Run(ctx context.Context, f *flow.Flow) error {
	fmt.Fprintln(s.out, "Commands in code entry: :back, :submit, :cell N, :del, :quit")
	for s.navigated == "" {
		if ctx.Err() != nil {
			return errAborted
		}
		phase := f.Phase()
		if phase == flow.AwaitingCode && s.lastPhase != flow.AwaitingCode {
			s.focus = 0
		}
		s.lastPhase = phase

		var err error
		switch phase {
		case flow.AwaitingAddress:
			err = s.addressStep(ctx, f)
		case flow.AwaitingCode:
			err = s.codeStep(ctx, f)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *terminalSession) addressStep(ctx context.Context, f *flow.Flow) error {
	prompt := fmt.Sprintf("Student ID (@%s): ", s.domain)
	current := f.Prefix()
	if current != "" {
		prompt = fmt.Sprintf("Student ID (@%s) [%s]: ", s.domain, current)
	}
	line, err := s.readLine(ctx, prompt)
	if err != nil {
		return err
	}
	if line == ":quit" {
		return errAborted
	}
	// An empty line keeps the ID already entered.
	if line != "" {
		if err := f.SetPrefix(line); err != nil {
			return err
		}
	}
	_, err = f.SubmitAddress(ctx)
	return ignoreBusy(err)
}

func (s *terminalSession) codeStep(ctx context.Context, f *flow.Flow) error {
	code := f.Code()
	line, err := s.readLine(ctx, fmt.Sprintf("Code %s  digit %d: ", renderCode(code, s.focus), s.focus+1))
	if err != nil {
		return err
	}

	switch {
	case line == ":quit":
		return errAborted
	case line == ":back":
		return f.Back()
	case line == ":del":
		return f.EditCell(s.focus, "")
	case line == ":submit", line == "" && code.Filled():
		_, err := f.SubmitCode(ctx)
		return ignoreBusy(err)
	case line == "":
		fmt.Fprintf(s.out, "Enter all %d digits, then press Enter to verify.\n", flow.CodeLength)
		return nil
	case strings.HasPrefix(line, ":cell"):
		n, convErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ":cell")))
		if convErr != nil || n < 1 || n > flow.CodeLength {
			fmt.Fprintf(s.out, "Cell must be 1-%d.\n", flow.CodeLength)
			return nil
		}
		return f.SetFocus(n - 1)
	case strings.HasPrefix(line, ":"):
		fmt.Fprintf(s.out, "Unknown command %q.\n", line)
		return nil
	}

	// Typed or pasted digits fill cells from the focused one onwards; focus
	// follows the flow's auto-advance. Separators in pasted codes are skipped.
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		at := s.focus
		if err := f.EditCell(at, string(r)); err != nil {
			return err
		}
		if s.focus == at {
			break
		}
	}
	return nil
}

// readLine prompts and waits for the next line or for ctx to end. Reads
// happen on a separate goroutine so an interrupt does not wait for Enter.
func (s *terminalSession) readLine(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(s.out, prompt)
	if s.lines == nil {
		s.lines = make(chan lineResult)
		go s.readLines()
	}
	select {
	case <-ctx.Done():
		fmt.Fprintln(s.out)
		return "", errAborted
	case r, ok := <-s.lines:
		if !ok {
			return "", errAborted
		}
		if r.err != nil {
			if errors.Is(r.err, io.EOF) && len(r.line) > 0 {
				return strings.TrimSpace(r.line), nil
			}
			if errors.Is(r.err, io.EOF) {
				return "", errAborted
			}
			return "", r.err
		}
		return strings.TrimSpace(r.line), nil
	}
}

func (s *terminalSession) readLines() {
	defer close(s.lines)
	for {
		line, err := s.in.ReadString('\n')
		s.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// renderCode shows the buffer as "[1 2 _ _ _ _]" with the focused cell
// bracketed by angle marks.
func renderCode(code flow.CodeBuffer, focus int) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range code {
		if i > 0 {
			b.WriteByte(' ')
		}
		if c == "" {
			c = "_"
		}
		if i == focus {
			b.WriteString(">" + c)
			continue
		}
		b.WriteString(c)
	}
	b.WriteByte(']')
	return b.String()
}

func ignoreBusy(err error) error {
	if errors.Is(err, flow.ErrInFlight) || errors.Is(err, flow.ErrStale) {
		return nil
	}
	return err
}
