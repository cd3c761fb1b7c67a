// Package eventbus implements the EventBus: a per-task,
// append-only, sequence-numbered event log with live fan-out to in-process
// subscribers, persisted at <workspace>/.state/events/<task_id>.log as
// newline-delimited JSON records that are never rewritten.
package eventbus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/context-foundry/core/pkg/model"
)

// SubscriberDeadline bounds how long Emit waits for a slow subscriber before
// dropping it, so a stuck observer can never back-pressure producers.
const SubscriberDeadline = 2 * time.Second

// subscriber is one live, in-process observer.
type subscriber struct {
	id string
	ch chan model.Event
}

// Bus is a single task's event log: durable append plus best-effort fan-out.
type Bus struct {
	taskID string
	path   string

	mu          sync.Mutex
	file        *os.File
	writer      *bufio.Writer
	nextSeq     int64
	subscribers map[string]*subscriber
	dropped     uint64
}

// New opens (creating if necessary) the append-only log for taskID under
// <root>/.state/events/<task_id>.log and positions nextSeq after any existing
// records, so Emit continues the monotone sequence across restarts.
func New(root, taskID string) (*Bus, error) {
	dir := filepath.Join(root, ".state", "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventbus: mkdir events dir: %w", err)
	}
	path := filepath.Join(dir, taskID+".log")

	nextSeq, err := lastSeq(path)
	if err != nil {
		return nil, fmt.Errorf("eventbus: scan existing log: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventbus: open log: %w", err)
	}

	return &Bus{
		taskID:      taskID,
		path:        path,
		file:        f,
		writer:      bufio.NewWriter(f),
		nextSeq:     nextSeq,
		subscribers: make(map[string]*subscriber),
	}, nil
}

// lastSeq scans an existing log and returns one past its highest seq, or 0
// if the log does not exist yet.
func lastSeq(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var last int64 = -1
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var e model.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if e.Seq > last {
			last = e.Seq
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return last + 1, nil
}

// Emit appends a new event and returns once it is durably on disk and has
// been offered to every current subscriber. Subscribers that do not drain
// within SubscriberDeadline are dropped; the append itself is never delayed
// or lost because of a slow subscriber.
func (b *Bus) Emit(phaseID model.Phase, kind model.EventKind, payload map[string]interface{}) (model.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := model.Event{
		Seq:       b.nextSeq,
		TaskID:    b.taskID,
		PhaseID:   phaseID,
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	}
	b.nextSeq++

	line, err := json.Marshal(e)
	if err != nil {
		return model.Event{}, fmt.Errorf("eventbus: marshal event: %w", err)
	}
	line = append(line, '\n')

	if _, err := b.writer.Write(line); err != nil {
		return model.Event{}, fmt.Errorf("eventbus: append event: %w", err)
	}
	if err := b.writer.Flush(); err != nil {
		return model.Event{}, fmt.Errorf("eventbus: flush event: %w", err)
	}
	if err := b.file.Sync(); err != nil {
		return model.Event{}, fmt.Errorf("eventbus: sync event: %w", err)
	}

	b.fanOutLocked(e)
	return e, nil
}

// fanOutLocked best-effort delivers e to every subscriber, dropping any that
// do not accept within SubscriberDeadline. Must be called with b.mu held.
func (b *Bus) fanOutLocked(e model.Event) {
	for id, sub := range b.subscribers {
		timer := time.NewTimer(SubscriberDeadline)
		select {
		case sub.ch <- e:
			timer.Stop()
		case <-timer.C:
			close(sub.ch)
			delete(b.subscribers, id)
			b.dropped++
		}
	}
}

// Subscription is a live, replay-then-follow event stream.
type Subscription struct {
	id     string
	bus    *Bus
	Events <-chan model.Event
}

// Subscribe replays every event from fromSeq (inclusive) and then follows
// live events as they are emitted, enabling reconnecting observers.
// Replay happens synchronously against the durable log so no live event can
// be missed between the replay and the live hookup.
func (b *Bus) Subscribe(fromSeq int64) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	replayed, err := b.replay(fromSeq)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	ch := make(chan model.Event, len(replayed)+64)
	for _, e := range replayed {
		ch <- e
	}

	b.subscribers[id] = &subscriber{id: id, ch: ch}

	return &Subscription{id: id, bus: b, Events: ch}, nil
}

// Unsubscribe removes the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subscribers, s.id)
	}
}

// replay reads every durable event with seq >= fromSeq, in order. It must be
// called with b.mu held.
func (b *Bus) replay(fromSeq int64) ([]model.Event, error) {
	if err := b.writer.Flush(); err != nil {
		return nil, fmt.Errorf("eventbus: flush before replay: %w", err)
	}

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventbus: open log for replay: %w", err)
	}
	defer f.Close()

	var events []model.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		var e model.Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if e.Seq >= fromSeq {
			events = append(events, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventbus: scan log for replay: %w", err)
	}
	return events, nil
}

// NextSeq returns the sequence number the next Emit call will use, i.e. one
// past the highest seq durably recorded so far. Useful for a status command
// that wants `last_event_seq` without subscribing.
func (b *Bus) NextSeq() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextSeq
}

// DroppedCount returns the number of subscribers dropped for exceeding
// SubscriberDeadline over this Bus's lifetime.
func (b *Bus) DroppedCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close flushes and closes the underlying log file. It does not close live
// subscriber channels; callers should Unsubscribe them first.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.writer.Flush(); err != nil {
		return err
	}
	return b.file.Close()
}
