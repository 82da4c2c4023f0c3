// Package outbound paces messages to the chat service so the agent never
// exceeds the host's message-frequency limit.
package outbound

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// DefaultInterval is the minimum spacing between two sends.
const DefaultInterval = time.Second

// SendFunc delivers one message to the transport.
type SendFunc func(text string) error

// Queue is a FIFO of pending outgoing texts for one room. At most one message
// goes out per interval; the timer halts whenever the queue drains or the
// connection drops, so an idle queue costs nothing.
type Queue struct {
	mu        sync.Mutex
	clk       clock.Clock
	log       *zerolog.Logger
	send      SendFunc
	interval  time.Duration
	pending   []string
	connected bool
	lastSend  time.Time
	timer     *clock.Timer
	running   bool
}

// New constructs a queue. A nil send function is legal: messages are still
// dequeued at the paced rate and discarded, which inert test setups rely on.
func New(clk clock.Clock, interval time.Duration, send SendFunc, logger *zerolog.Logger) *Queue {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Queue{
		clk:      clk,
		log:      logger,
		send:     send,
		interval: interval,
	}
}

// Push appends a message and, when connected, makes sure the pacing timer runs.
func (q *Queue) Push(text string) {
	q.mu.Lock()
	q.pending = append(q.pending, text)
	q.startLocked()
	q.mu.Unlock()
}

// SetConnected reflects transport connectivity. Disconnecting suspends sending
// without dropping what is queued; reconnecting resumes the drain.
func (q *Queue) SetConnected(connected bool) {
	q.mu.Lock()
	q.connected = connected
	if connected {
		q.startLocked()
	} else {
		q.stopLocked()
	}
	q.mu.Unlock()
}

// SetSender swaps the delivery function, typically once a transport is live.
func (q *Queue) SetSender(send SendFunc) {
	q.mu.Lock()
	q.send = send
	q.mu.Unlock()
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// startLocked arms the timer if there is something to send. The first fire
// respects time already elapsed since the previous run's last send, so a
// burst after a long idle period goes out immediately.
func (q *Queue) startLocked() {
	if q.running || !q.connected || len(q.pending) == 0 {
		return
	}
	delay := q.interval - q.clk.Since(q.lastSend)
	if delay < 0 {
		delay = 0
	}
	q.running = true
	q.timer = q.clk.AfterFunc(delay, q.tick)
}

func (q *Queue) stopLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.running = false
}

// tick sends exactly one message, then either re-arms for the next interval
// or halts when the queue is empty.
func (q *Queue) tick() {
	q.mu.Lock()
	if !q.running || !q.connected || len(q.pending) == 0 {
		q.timer = nil
		q.running = false
		q.mu.Unlock()
		return
	}
	text := q.pending[0]
	q.pending = q.pending[1:]
	q.lastSend = q.clk.Now()
	send := q.send
	if len(q.pending) > 0 {
		q.timer = q.clk.AfterFunc(q.interval, q.tick)
	} else {
		q.timer = nil
		q.running = false
	}
	q.mu.Unlock()

	if send == nil {
		return
	}
	if err := send(text); err != nil {
		q.log.Warn().Err(err).Msg("outbound send failed")
	}
}
