package viewer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/keyxmakerx/tabletop/internal/tabletop"
)

// errQuit ends Run without an error.
var errQuit = errors.New("quit")

const help = `commands:
  state              print the table
  pull               fetch the shared view now
  pan DX DY          move the viewport by a screen delta
  zoom DELTA X Y     apply a wheel delta around screen point X,Y
  down X Y           press the pointer at screen point X,Y
  move X Y           move the pointer
  up                 release the pointer
  quit`

// Session is one viewer attached to a table. Output is written to out, one
// block per change of the view.
type Session struct {
	table    *tabletop.Table
	interval time.Duration

	mu       sync.Mutex
	out      io.Writer
	last     tabletop.ViewState
	lastView tabletop.Viewport
	shown    bool
}

// NewSession wraps table. interval is how often the view is checked for
// changes to print.
func NewSession(table *tabletop.Table, out io.Writer, interval time.Duration) *Session {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &Session{table: table, out: out, interval: interval}
}

// Run keeps the table in sync and executes the commands read from in until
// in is exhausted, "quit" is read or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.sync(ctx)
	}()
	go func() {
		defer wg.Done()
		s.render(ctx)
	}()

	err := s.commands(ctx, in)
	cancel()
	wg.Wait()
	if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Session) commands(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := s.Exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				s.printf("error: %v\n", err)
			}
		}
	}
}

// sync follows the shared view over the store's change feed, or by polling
// when the store cannot push.
func (s *Session) sync(ctx context.Context) {
	err := s.table.Watch(ctx)
	if !errors.Is(err, tabletop.ErrNoSubscription) {
		return
	}
	slog.Info("store cannot push changes, polling", slog.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.table.Pull(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("pull failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) render(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.show(false)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Exec runs one command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		s.printf("%s\n", help)
		return nil
	case "state":
		s.show(true)
		return nil
	case "pull":
		if err := s.table.Pull(ctx); err != nil {
			return err
		}
	case "pan":
		n, err := numbers(args, 2)
		if err != nil {
			return err
		}
		s.table.Pan(n[0], n[1])
	case "zoom":
		n, err := numbers(args, 3)
		if err != nil {
			return err
		}
		s.table.Zoom(n[0], tabletop.Point{X: n[1], Y: n[2]})
	case "down":
		n, err := numbers(args, 2)
		if err != nil {
			return err
		}
		g := s.table.PointerDown(tabletop.Point{X: n[0], Y: n[1]})
		s.printf("%s\n", g)
	case "move":
		n, err := numbers(args, 2)
		if err != nil {
			return err
		}
		s.table.PointerMove(tabletop.Point{X: n[0], Y: n[1]})
	case "up":
		if err := s.table.PointerUp(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	s.show(false)
	return nil
}

// show prints the table when it changed since the last print, or always
// when force is set.
func (s *Session) show(force bool) {
	state := s.table.State()
	view := s.table.Viewport()
	selected := s.table.Selected()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && s.shown && state.Equal(s.last) && view.Scale == s.lastView.Scale && view.Offset == s.lastView.Offset {
		return
	}
	s.last, s.lastView, s.shown = state, view, true

	var b strings.Builder
	fmt.Fprintf(&b, "revision %d  scale %.2f  offset (%.0f, %.0f)  %d tokens\n",
		state.Revision, view.Scale, view.Offset.X, view.Offset.Y, len(state.Tokens))
	if state.BackgroundImage != nil {
		fmt.Fprintf(&b, "  background %s\n", abbreviate(*state.BackgroundImage))
	}
	for _, tok := range state.Tokens {
		mark := " "
		if tok.ID == selected {
			mark = "*"
		}
		screen := view.MapToScreen(tabletop.Point{X: tok.X, Y: tok.Y})
		fmt.Fprintf(&b, " %s %-12s %s  map (%.0f, %.0f)  screen (%.0f, %.0f)\n",
			mark, tok.Label, tok.ID, tok.X, tok.Y, screen.X, screen.Y)
	}
	_, _ = io.WriteString(s.out, b.String())
}

func (s *Session) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func numbers(args []string, want int) ([]float64, error) {
	if len(args) != want {
		return nil, fmt.Errorf("expected %d numbers, got %d", want, len(args))
	}
	out := make([]float64, want)
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", a)
		}
		out[i] = f
	}
	return out, nil
}

// abbreviate keeps embedded images from flooding the terminal.
func abbreviate(s string) string {
	if len(s) <= 60 {
		return s
	}
	return s[:57] + "..."
}
