package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette
var (
	colorAccent  = lipgloss.Color("#2CD7C7")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorSuccess = lipgloss.Color("#2CD7C7")
)

var (
	bulletStyle = lipgloss.NewStyle().Foreground(colorMuted)
	readyStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	labelStyle  = lipgloss.NewStyle().Foreground(colorAccent)
)

// Console renders sink events to a terminal. On a TTY progress is a single
// redrawn bar; otherwise progress is printed as plain lines every 10%.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	styled    bool
	bar       progress.Model
	barActive bool
	lastPlain int
}

// NewConsole creates a console sink. Styling is enabled when out is a
// terminal.
func NewConsole(out io.Writer) *Console {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return NewConsoleStyled(out, styled)
}

// NewConsoleStyled creates a console sink with explicit styling.
func NewConsoleStyled(out io.Writer, styled bool) *Console {
	return &Console{
		out:    out,
		styled: styled,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
		),
		lastPlain: -1,
	}
}

// Log prints a line, ending any bar in progress.
func (c *Console) Log(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endBar()
	if c.styled {
		fmt.Fprintf(c.out, "%s %s\n", bulletStyle.Render("•"), message)
		return
	}
	fmt.Fprintln(c.out, message)
}

// SetProgress draws the progress bar or a plain progress line.
func (c *Console) SetProgress(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	percent = Clamp(percent)
	if c.styled {
		fmt.Fprintf(c.out, "\r%s", c.bar.ViewAs(float64(percent)/100))
		c.barActive = percent < 100
		if !c.barActive {
			fmt.Fprintln(c.out)
		}
		return
	}

	// Plain output: one line per 10% step, resetting when a new download starts
	if percent < c.lastPlain {
		c.lastPlain = -1
	}
	step := percent / 10 * 10
	if step <= c.lastPlain {
		return
	}
	c.lastPlain = step
	fmt.Fprintf(c.out, "progress: %d%%\n", step)
}

// SetPlayMode announces that the game can be launched.
func (c *Console) SetPlayMode() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.endBar()
	if c.styled {
		fmt.Fprintln(c.out, readyStyle.Render("✓ Ready to play"))
		return
	}
	fmt.Fprintln(c.out, "ready to play")
}

// Label renders an accented label for summary output.
func (c *Console) Label(text string) string {
	if !c.styled {
		return text
	}
	return labelStyle.Render(text)
}

func (c *Console) endBar() {
	if c.barActive {
		fmt.Fprintln(c.out)
		c.barActive = false
	}
}
