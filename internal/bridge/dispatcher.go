package bridge

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/binary"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/config"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/outcome"
	"github.com/ZebulonRouseFrantzich/heykeploy/internal/recorder"
)

// Updater is the binary updater. *binary.Manager implements it.
type Updater interface {
	Update(ctx context.Context, src binary.Source, report outcome.Reporter) outcome.Result
}

// Launcher starts recordings. *recorder.Launcher implements it.
type Launcher interface {
	Start(ctx context.Context, req recorder.Request) (*recorder.Recording, outcome.Result)
}

// VersionSource resolves the latest recorder release. *release.Client
// implements it.
type VersionSource interface {
	Latest(ctx context.Context) (string, error)
}

// Options wires a Dispatcher to the core operations.
type Options struct {
	Updater  Updater
	Launcher Launcher
	Versions VersionSource
	// Archive is the source used for updateKeploy.
	Archive binary.Source
	// Image is the container image used for updateKeployDocker.
	Image string
	// Progress forwards update status events as info replies.
	Progress bool
	Logger   config.Logger
}

// Dispatcher routes panel messages to the core operations.
type Dispatcher struct {
	opts   Options
	logger config.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = config.NopLogger()
	}
	return &Dispatcher{opts: opts, logger: logger}
}

// Handle processes one message and sends its replies. Unknown types and
// messages with an empty value are ignored.
func (d *Dispatcher) Handle(ctx context.Context, msg Message, send SendFunc) {
	if msg.Value == "" {
		d.logger.Debug("ignoring message without value", "type", msg.Type)
		return
	}

	switch msg.Type {
	case TypeInfo:
		d.logger.Info("panel info", "message", msg.Value)
		send(Reply{Type: ReplyInfo, Value: msg.Value})

	case TypeError:
		d.logger.Warn("panel error", "message", msg.Value)
		send(Reply{Type: ReplyError, Value: msg.Value})

	case TypeUpdateKeploy:
		result := d.update(ctx, d.opts.Archive, send)
		send(resultReply(result, "Failed to update Keploy binary"))

	case TypeUpdateKeployDocker:
		result := d.update(ctx, binary.Source{Container: true, Image: d.opts.Image}, send)
		send(resultReply(result, "Failed to update Keploy Docker"))

	case TypeRecord:
		// The panel's file picker already chose the file; echo it so the
		// panel can show the selection.
		send(Reply{Type: ReplyFile, Value: msg.Value})

	case TypeStartRecording:
		if d.opts.Launcher == nil {
			send(Reply{Type: ReplyError, Value: "Failed to record: recording is not available"})
			return
		}
		_, result := d.opts.Launcher.Start(ctx, recorder.Request{Command: msg.Command, FilePath: msg.FilePath})
		send(resultReply(result, "Failed to record"))

	case TypeLatestVersion:
		if d.opts.Versions == nil {
			send(Reply{Type: ReplyError, Value: "Error fetching Keploy version: release lookup is not available"})
			return
		}
		version, err := d.opts.Versions.Latest(ctx)
		if err != nil {
			send(Reply{Type: ReplyError, Value: "Error fetching Keploy version: " + outcome.Failure(outcome.KindNetwork, err).Message})
			return
		}
		send(Reply{Type: ReplyInfo, Value: "The latest version of Keploy is " + version})

	default:
		d.logger.Debug("ignoring unknown message type", "type", msg.Type)
	}
}

func (d *Dispatcher) update(ctx context.Context, src binary.Source, send SendFunc) outcome.Result {
	if d.opts.Updater == nil {
		return outcome.Failure(outcome.KindInvalidInput, fmt.Errorf("updates are not available"))
	}
	var report outcome.Reporter
	if d.opts.Progress {
		report = func(s outcome.Status) {
			send(Reply{Type: ReplyInfo, Value: s.Message})
		}
	}
	return d.opts.Updater.Update(ctx, src, report)
}

// Forward turns recorder exit events into exited replies until ctx is done
// or events is closed.
func (d *Dispatcher) Forward(ctx context.Context, events <-chan recorder.ExitEvent, send SendFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			send(Reply{Type: ReplyExited, Value: exitMessage(ev)})
		}
	}
}

func exitMessage(ev recorder.ExitEvent) string {
	switch {
	case ev.Err != nil:
		return fmt.Sprintf("Recording (pid %d) failed: %v", ev.PID, ev.Err)
	case ev.ExitCode == 0:
		return fmt.Sprintf("Recording (pid %d) finished", ev.PID)
	case ev.ExitCode < 0:
		return fmt.Sprintf("Recording (pid %d) was killed", ev.PID)
	default:
		return fmt.Sprintf("Recording (pid %d) exited with code %d", ev.PID, ev.ExitCode)
	}
}

func resultReply(result outcome.Result, failurePrefix string) Reply {
	if result.OK {
		return Reply{Type: ReplySuccess, Value: result.Message}
	}
	return Reply{Type: ReplyError, Value: fmt.Sprintf("%s: %s", failurePrefix, result)}
}
