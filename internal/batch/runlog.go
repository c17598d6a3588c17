package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
	"time"
)

// ErrRunLogClosed indicates an append after Close.
var ErrRunLogClosed = errors.New("batch: run log already closed")

// EventType tags one run-log entry.
type EventType string

const (
	EventStarted EventType = "STARTED"
	EventOK      EventType = "OK"
	EventSkipped EventType = "SKIPPED"
	EventFailed  EventType = "FAILED"
)

// Event is one line of the run log. The checksum covers the fields that
// identify the event, so a torn or tampered line is detected on replay.
type Event struct {
	Seq      uint64    `json:"seq"`
	Type     EventType `json:"type"`
	Job      string    `json:"job"`
	Detail   string    `json:"detail,omitempty"` // error text for FAILED events
	Time     int64     `json:"ts"`               // unix milliseconds
	Checksum uint32    `json:"crc"`
}

func eventChecksum(seq uint64, typ EventType, job string) uint32 {
	return crc32.ChecksumIEEE([]byte(fmt.Sprintf("%d|%s|%s", seq, typ, job)))
}

// RunLog is the append-only journal of a batch run: one JSON event per line,
// synced per append. Replaying it tells a resumed run which jobs are already
// done.
type RunLog struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	seq  uint64
	path string
}

// OpenRunLog opens or creates the journal at path. An existing journal is
// replayed first; a corrupt tail is truncated away so appending continues
// from the last intact event. The replayed events are returned for resume
// decisions.
func OpenRunLog(path string) (*RunLog, []Event, error) {
	events, err := ReplayRunLog(path)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("runlog: open: %w", err)
	}

	var seq uint64
	if len(events) > 0 {
		seq = events[len(events)-1].Seq
	}
	return &RunLog{f: f, enc: json.NewEncoder(f), seq: seq, path: path}, events, nil
}

// Append writes one event and syncs it to disk.
func (l *RunLog) Append(typ EventType, job, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return ErrRunLogClosed
	}
	l.seq++
	ev := Event{
		Seq:    l.seq,
		Type:   typ,
		Job:    job,
		Detail: detail,
		Time:   time.Now().UnixMilli(),
	}
	ev.Checksum = eventChecksum(ev.Seq, ev.Type, ev.Job)

	if err := l.enc.Encode(ev); err != nil {
		return fmt.Errorf("runlog: append seq=%d: %w", ev.Seq, err)
	}
	return l.f.Sync()
}

// Path returns the journal location.
func (l *RunLog) Path() string { return l.path }

func (l *RunLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReplayRunLog reads every intact event from path. Reading stops at the
// first torn line, parse failure, checksum mismatch, or sequence gap; the
// corrupt tail is truncated so the journal stays appendable. A missing file
// yields no events.
func ReplayRunLog(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("runlog: open: %w", err)
	}
	defer f.Close()

	var (
		events  []Event
		lastSeq uint64
		valid   int64 // offset after the last intact event
		corrupt bool
	)

	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadBytes('\n')
		if len(line) > 0 {
			ev, ok := decodeEvent(line, readErr == nil, lastSeq)
			if !ok {
				corrupt = true
				break
			}
			events = append(events, ev)
			lastSeq = ev.Seq
			valid += int64(len(line))
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return events, fmt.Errorf("runlog: read: %w", readErr)
		}
	}

	if corrupt {
		log.Warn("Truncating corrupt run log tail", "path", path, "offset", valid)
		if err := os.Truncate(path, valid); err != nil {
			return events, fmt.Errorf("runlog: truncate corrupt tail: %w", err)
		}
	}
	return events, nil
}

// decodeEvent validates one journal line: it must be newline-terminated,
// parse as JSON, carry the right checksum, and continue the sequence.
func decodeEvent(line []byte, complete bool, lastSeq uint64) (Event, bool) {
	if !complete {
		return Event{}, false
	}
	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil {
		return Event{}, false
	}
	if ev.Checksum != eventChecksum(ev.Seq, ev.Type, ev.Job) {
		return Event{}, false
	}
	if ev.Seq != lastSeq+1 {
		return Event{}, false
	}
	return ev, true
}

// CompletedJobs folds replayed events into the set of jobs that reached a
// terminal OK or SKIPPED state. A later STARTED or FAILED event for the same
// job clears it again, so interrupted or failed reruns are retried.
func CompletedJobs(events []Event) map[string]bool {
	done := make(map[string]bool)
	for _, ev := range events {
		switch ev.Type {
		case EventOK, EventSkipped:
			done[ev.Job] = true
		case EventStarted, EventFailed:
			delete(done, ev.Job)
		}
	}
	return done
}
