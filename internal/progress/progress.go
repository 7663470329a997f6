// Package progress aggregates per-fragment byte counts from every
// coordinator into a single status line (§4.6), the way the teacher's
// progress_queue consumer does, and owns the SIGINT-to-stop handoff.
package progress

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rivergate-tools/ytlive/internal/durfmt"
	"github.com/rivergate-tools/ytlive/internal/session"
	"github.com/rivergate-tools/ytlive/internal/ytlog"
)

// Update is one fragment-written notification from a coordinator.
type Update struct {
	Kind   session.Kind
	Bytes  int
	MaxSeq int
}

// Aggregator is the single consumer of every coordinator's Update channel.
// It keeps running totals and renders one carriage-returned status line,
// matching the teacher's single progress_queue consumer loop.
type Aggregator struct {
	State *session.State
	Debug bool

	totalBytes int64
	fragCounts map[session.Kind]int
	maxSeq     int
	startedAt  time.Time
}

// New builds an Aggregator bound to st for stop signalling.
func New(st *session.State) *Aggregator {
	return &Aggregator{
		State:      st,
		fragCounts: map[session.Kind]int{session.KindAudio: 0, session.KindVideo: 0},
		startedAt:  time.Now(),
	}
}

// Run drains updates until the channel closes, rendering a status line for
// each one, and returns the final totals. It also installs a SIGINT
// handler for the duration of the call that flips the session's stopping
// flag so in-flight coordinators wind down instead of being killed.
func (a *Aggregator) Run(updates <-chan Update) (totalBytes int64, fragCounts map[session.Kind]int) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return a.totalBytes, a.fragCounts
			}
			a.totalBytes += int64(u.Bytes)
			a.fragCounts[u.Kind]++
			if u.MaxSeq > a.maxSeq {
				a.maxSeq = u.MaxSeq
			}
			a.render()

		case <-sigCh:
			ytlog.Info("\nkeyboard interrupt, stopping download...")
			a.State.Stop()
			// Keep draining until the coordinators actually exit and
			// close the channel, so no already-downloaded fragment is
			// dropped on the floor.
		}
	}
}

func (a *Aggregator) render() {
	status := fmt.Sprintf("video fragments: %d; audio fragments: %d; ",
		a.fragCounts[session.KindVideo], a.fragCounts[session.KindAudio])
	if a.Debug {
		status += fmt.Sprintf("max sequence: %d; ", a.maxSeq)
	}
	status += fmt.Sprintf("total downloaded: %s; elapsed: %s", formatSize(a.totalBytes), durfmt.Elapsed(time.Since(a.startedAt)))

	a.State.SetStatus(status)
	ytlog.Status("%s", status)
}

// formatSize renders n bytes using the same binary-prefix breakpoints as
// the teacher's format_size.
func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for x := n / unit; x >= unit; x /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// TerminalWidth returns the current terminal column count, falling back to
// 80 when stdout isn't a TTY or the ioctl fails (e.g. redirected output,
// CI runs). Grounded on the teacher's dependency on golang.org/x/sys for
// the ioctl itself rather than a hand-rolled syscall wrapper.
func TerminalWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return 80
	}
	return int(ws.Col)
}
