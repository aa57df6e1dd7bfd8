// Package queue implements the durable folder-based work queue. An item's
// lifecycle state is its physical location: exactly one of the four queue
// directories holds the recording at any time, and the only state-transition
// primitive is a rename between them. Nothing else (status files, database
// rows, the presence of a published document) is ever consulted to answer
// "where is item X".
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// State names one of the four queue directories.
type State string

const (
	StateIncoming   State = "incoming"
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
	StateFailed     State = "failed"
)

// audioExtensions is the allow-list of recording formats the queue accepts.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".webm": true,
	".flac": true,
}

// IsSupportedAudio reports whether the filename carries an allow-listed
// audio extension.
func IsSupportedAudio(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// Item is one voice recording moving through the pipeline, identified by its
// filename, which is unique within the queue at any point in time.
type Item struct {
	Name string
}

// Stem returns the item's name without its audio extension, used to derive
// the names of companion artifacts (media files, failure logs).
func (it Item) Stem() string {
	return strings.TrimSuffix(it.Name, filepath.Ext(it.Name))
}

// FailureRecord documents why an item terminated in the failed state. It is
// written exactly once, beside the preserved recording, and never mutated.
type FailureRecord struct {
	ItemName      string `json:"itemName"`
	FailedAtStage int    `json:"failedAtStage"`
	Timestamp     string `json:"timestamp"`
	ErrorMessage  string `json:"errorMessage"`
	ErrorDetail   string `json:"errorDetail,omitempty"`
}

// Queue manages the four lifecycle directories under one root.
type Queue struct {
	root string
}

// Open ensures all four queue directories exist under root. A creation
// failure here is an orchestrator-level fatal error.
func Open(root string) (*Queue, error) {
	q := &Queue{root: root}

	for _, state := range []State{StateIncoming, StateProcessing, StateProcessed, StateFailed} {
		if err := os.MkdirAll(q.Dir(state), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory %s: %w", q.Dir(state), err)
		}
	}

	return q, nil
}

// Root returns the queue's root directory.
func (q *Queue) Root() string {
	return q.root
}

// Dir returns the directory backing one lifecycle state.
func (q *Queue) Dir(state State) string {
	return filepath.Join(q.root, string(state))
}

// Path returns where the item's file lives while in the given state.
func (q *Queue) Path(item Item, state State) string {
	return filepath.Join(q.Dir(state), item.Name)
}

// Discover lists the incoming directory and returns the allow-listed audio
// files as independent work items, sorted lexicographically by name so a
// batch processes in a deterministic order across runs.
func (q *Queue) Discover() ([]Item, error) {
	entries, err := os.ReadDir(q.Dir(StateIncoming))
	if err != nil {
		return nil, fmt.Errorf("failed to read incoming directory: %w", err)
	}

	var items []Item
	for _, entry := range entries {
		if entry.IsDir() || !IsSupportedAudio(entry.Name()) {
			continue
		}
		items = append(items, Item{Name: entry.Name()})
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	return items, nil
}

// Claim moves an item from incoming to processing before any stage runs.
// The rename is the claim: once it succeeds no other worker sweeping the
// incoming directory can pick the item up.
func (q *Queue) Claim(item Item) error {
	return q.move(item, StateIncoming, StateProcessing)
}

// Complete moves a fully published item from processing to processed. The
// processed state is terminal.
func (q *Queue) Complete(item Item) error {
	return q.move(item, StateProcessing, StateProcessed)
}

// Fail moves the item from processing to failed, preserving the original
// recording, and writes a failure record beside it so the item can be
// diagnosed and manually re-queued without re-recording.
func (q *Queue) Fail(item Item, record FailureRecord) error {
	if err := q.move(item, StateProcessing, StateFailed); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode failure record for %s: %w", item.Name, err)
	}

	logPath := filepath.Join(q.Dir(StateFailed), item.Stem()+"-error.log")
	//nolint:gosec // Failure logs need to be readable for diagnosis
	if err := os.WriteFile(logPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write failure record for %s: %w", item.Name, err)
	}

	return nil
}

// move performs the single state-transition primitive. It refuses to
// overwrite an existing file in the destination, which would break the
// one-location-per-item invariant.
func (q *Queue) move(item Item, from, to State) error {
	src := q.Path(item, from)
	dst := q.Path(item, to)

	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("item %s not in %s: %w", item.Name, from, err)
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("item %s already present in %s", item.Name, to)
	}

	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to move %s from %s to %s: %w", item.Name, from, to, err)
	}

	return nil
}
