package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/cratex/pkg/engine"
)

type NopJournal struct{}

func NewNopJournal() *NopJournal { return &NopJournal{} }

func (j *NopJournal) Append(_ engine.JournalEntry) error { return nil }

// FileJournal appends one JSON line per entry and syncs after each write.
type FileJournal struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileJournal{f: f}, nil
}

func (j *FileJournal) Append(entry engine.JournalEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.f.Write(append(line, '\n')); err != nil {
		return err
	}
	return j.f.Sync()
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

var _ engine.Journal = (*NopJournal)(nil)
var _ engine.Journal = (*FileJournal)(nil)
