package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/hiplay/pkg/audio"
	"github.com/MrWong99/hiplay/pkg/provider/live"
)

// defaultOutboxSize bounds the captured frames waiting for the network. At
// 2048 samples per frame and 16 kHz that is about four seconds of audio.
const defaultOutboxSize = 32

// outbox decouples the capture goroutine from network writes. Frames are
// sent in capture order by a single sender goroutine. A frame that arrives
// while the queue is full, or after the outbox closed, is dropped and
// counted; capture never blocks on the network.
type outbox struct {
	conn      live.Conn
	onDropped func(reason string)
	onSent    func()

	mu     sync.Mutex
	queue  chan audio.Chunk
	closed bool
	done   chan struct{}
}

func newOutbox(conn live.Conn, size int, onSent func(), onDropped func(reason string)) *outbox {
	if size <= 0 {
		size = defaultOutboxSize
	}
	o := &outbox{
		conn:      conn,
		onSent:    onSent,
		onDropped: onDropped,
		queue:     make(chan audio.Chunk, size),
		done:      make(chan struct{}),
	}
	go o.run()
	return o
}

// Push queues chunk and reports whether it was accepted.
func (o *outbox) Push(chunk audio.Chunk) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.drop("closed")
		return false
	}
	select {
	case o.queue <- chunk:
		return true
	default:
		o.drop("full")
		return false
	}
}

func (o *outbox) drop(reason string) {
	if o.onDropped != nil {
		o.onDropped(reason)
	}
}

func (o *outbox) run() {
	defer close(o.done)
	for chunk := range o.queue {
		if err := o.conn.SendAudio(chunk); err != nil {
			if !errors.Is(err, live.ErrClosed) {
				slog.Debug("session: send audio failed", "err", err)
			}
			o.drop("closed")
			continue
		}
		if o.onSent != nil {
			o.onSent()
		}
	}
}

// Close stops accepting frames and waits for the sender to finish the
// frames already queued. Frames the connection rejects are dropped. Close
// is idempotent.
func (o *outbox) Close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	<-o.done
}
