package transfer

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/davlabs/webdavfs/internal/states"
)

// ErrCanceled is returned by transfer operations once the transfer has been
// canceled through its command queue or its state torn down.
var ErrCanceled = errors.New("transfer canceled")

// State bundles the reactive containers coordinating one transfer:
// a FIFO command queue for control, a gated status for consistent
// wait-for-state, and a lossy broadcast for high-frequency progress.
//
// The split follows the consistency needs of each signal. Progress updates
// are frequent and only the newest matters, so they ride the lock-free
// broadcast tier. Status transitions are rare but waiters (a paused worker
// waiting for resume) must never miss one, so status lives in the gated tier.
type State struct {
	commands *states.Queue[Command]
	consumer *states.QueueConsumer[Command]
	status   *states.Gated[Status]
	progress *states.Broadcast[Progress]
	total    atomic.Uint64
}

// NewState creates the state for a transfer of total bytes (0 if unknown),
// starting in StatusRunning.
func NewState(total uint64) *State {
	commands, consumer := states.NewQueue[Command]()
	s := &State{
		commands: commands,
		consumer: consumer,
		status:   states.NewGated(StatusRunning),
		progress: states.NewBroadcast(Progress{Total: total}),
	}
	s.total.Store(total)
	return s
}

// setTotal records the remote size once it is known (after the probe) so
// later progress snapshots carry it.
func (s *State) setTotal(total uint64) {
	s.total.Store(total)
	s.progress.UpdateWith(func(p Progress) Progress {
		p.Total = total
		return p
	})
}

// Pause requests the transfer to pause after its current unit of work.
func (s *State) Pause() error {
	return s.send(CommandPause)
}

// Resume requests a paused transfer to continue.
func (s *State) Resume() error {
	return s.send(CommandResume)
}

// Cancel requests the transfer to stop permanently.
func (s *State) Cancel() error {
	return s.send(CommandCancel)
}

func (s *State) send(c Command) error {
	if err := s.commands.Send(c); err != nil {
		return ErrCanceled
	}
	return nil
}

// Status returns the current lifecycle state.
func (s *State) Status() (Status, error) {
	v, err := s.status.Current()
	if err != nil {
		return StatusCanceled, ErrCanceled
	}
	return *v, nil
}

// Progress returns the latest published progress snapshot.
func (s *State) Progress() Progress {
	return states.GetOrDefault[Progress](s.progress)
}

// WatchProgress returns a latest-value-wins subscription over progress
// snapshots. Each consumer should create its own subscription.
func (s *State) WatchProgress() *states.Subscription[Progress] {
	return s.progress.Subscribe()
}

// SetProgress publishes the number of bytes completed so far.
func (s *State) SetProgress(bytesDone uint64) {
	s.progress.Update(Progress{BytesDone: bytesDone, Total: s.total.Load()})
}

// WaitResumed suspends until the transfer is no longer paused, then returns
// the status that ended the wait. Intended for bystanders; the transfer's own
// worker uses AwaitRunning so queued commands are also drained.
func (s *State) WaitResumed(ctx context.Context) (Status, error) {
	err := s.status.WaitUntil(ctx, func(st Status) bool { return st != StatusPaused })
	if err != nil {
		if errors.Is(err, states.ErrDestroyed) {
			return StatusCanceled, ErrCanceled
		}
		return StatusCanceled, err
	}
	return s.Status()
}

// ApplyCommands drains all queued commands without blocking and applies them
// to the status. It returns the resulting status.
func (s *State) ApplyCommands() (Status, error) {
	for {
		cmd, ok := s.consumer.TryRecv()
		if !ok {
			return s.Status()
		}
		if err := s.apply(cmd); err != nil {
			return StatusCanceled, err
		}
	}
}

// AwaitRunning drains queued commands and, while the transfer is paused,
// blocks on the command queue until a command makes it runnable again.
// Workers call this between units of work; it returns StatusRunning to
// proceed, or a terminal status / error to stop.
func (s *State) AwaitRunning(ctx context.Context) (Status, error) {
	for {
		st, err := s.ApplyCommands()
		if err != nil {
			return StatusCanceled, err
		}
		if st != StatusPaused {
			return st, nil
		}

		cmd, err := s.consumer.Recv(ctx)
		if err != nil {
			if errors.Is(err, states.ErrWatcherClosed) {
				return StatusCanceled, ErrCanceled
			}
			return StatusCanceled, err
		}
		if err := s.apply(cmd); err != nil {
			return StatusCanceled, err
		}
	}
}

// apply performs one status transition. Terminal states absorb all further
// commands.
func (s *State) apply(cmd Command) error {
	err := s.status.UpdateWith(func(cur *Status) {
		if cur == nil || cur.Terminal() {
			return
		}
		switch cmd {
		case CommandPause:
			if *cur == StatusRunning {
				*cur = StatusPaused
			}
		case CommandResume:
			if *cur == StatusPaused {
				*cur = StatusRunning
			}
		case CommandCancel:
			*cur = StatusCanceled
		}
	})
	if err != nil {
		return ErrCanceled
	}
	return nil
}

// Finish marks the transfer finished unless it is already terminal.
func (s *State) Finish() {
	_ = s.status.UpdateWith(func(cur *Status) {
		if cur != nil && !cur.Terminal() {
			*cur = StatusFinished
		}
	})
}

// Close tears the state down: the command queue stops accepting commands and
// all status waiters and progress subscribers are woken for the last time.
// Close is idempotent.
func (s *State) Close() {
	s.commands.Close()
	s.status.Destroy()
	s.progress.Destroy()
}
