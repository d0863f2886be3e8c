package transfer

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Status is the lifecycle state of one transfer. It is maintained by the
// transfer itself; outside callers observe it read-only through State.
type Status int

const (
	StatusRunning Status = iota
	StatusPaused
	StatusCanceled
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusCanceled:
		return "canceled"
	case StatusFinished:
		return "finished"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusFinished
}

// Command is a control instruction delivered to a transfer through its FIFO
// command queue, so that order is preserved (a pause followed by a resume is
// never observed as a resume followed by a pause).
type Command int

const (
	CommandPause Command = iota
	CommandResume
	CommandCancel
)

func (c Command) String() string {
	switch c {
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	case CommandCancel:
		return "cancel"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Progress is a point-in-time snapshot of a transfer's byte counters.
// Total is 0 when the remote size is unknown.
type Progress struct {
	BytesDone uint64
	Total     uint64
}

// Pct returns the completed percentage in [0, 100], or NaN when the total
// size is unknown.
func (p Progress) Pct() float64 {
	if p.Total == 0 {
		return math.NaN()
	}
	return float64(p.BytesDone) / float64(p.Total) * 100
}

func (p Progress) String() string {
	if p.Total == 0 {
		return fmt.Sprintf("%s / ?", humanize.IBytes(p.BytesDone))
	}
	return fmt.Sprintf("%s / %s (%.1f%%)", humanize.IBytes(p.BytesDone), humanize.IBytes(p.Total), p.Pct())
}
