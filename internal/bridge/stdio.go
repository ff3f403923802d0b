package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/ZebulonRouseFrantzich/heykeploy/internal/recorder"
)

// maxMessageSize bounds one inbound JSON line.
const maxMessageSize = 1 << 20

// ServeStdio reads newline-delimited JSON messages from r and writes
// replies to w, one JSON object per line. Each message is handled in its
// own goroutine so a running update does not block other requests.
// Exit events from events, when non-nil, are written as exited replies.
// It returns when r is exhausted or ctx is done, after all handlers have
// finished.
func (d *Dispatcher) ServeStdio(ctx context.Context, r io.Reader, w io.Writer, events <-chan recorder.ExitEvent) error {
	send := lineSender(w, d)

	var wg sync.WaitGroup
	defer wg.Wait()

	if events != nil {
		fwdCtx, stop := context.WithCancel(ctx)
		defer stop()
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Forward(fwdCtx, events, send)
		}()
	}

	// A reader blocked in Read only notices cancellation if it can be closed.
	if c, ok := r.(io.Closer); ok {
		stopClose := context.AfterFunc(ctx, func() { c.Close() })
		defer stopClose()
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
		for scanner.Scan() {
			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		var line []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := <-scanErr; err != nil {
					return fmt.Errorf("read messages: %w", err)
				}
				return nil
			}
			line = l
		}
		if len(line) == 0 {
			continue
		}

		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			send(Reply{Type: ReplyError, Value: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Handle(ctx, msg, send)
		}()
	}
}

// lineSender serializes replies as JSON lines on w.
func lineSender(w io.Writer, d *Dispatcher) SendFunc {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(reply Reply) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(reply); err != nil {
			d.logger.Error("failed to write reply", "type", reply.Type, "error", err)
		}
	}
}
