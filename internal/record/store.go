package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doridoridoriand/pingledger/internal/ping"
)

// ErrPersist is matched by every failure to write an observation record.
var ErrPersist = errors.New("persist observation")

// Entry is the on-disk form of one observation. Field names are read by
// external history tools and must not change.
type Entry struct {
	Timestamp string  `json:"timestamp"`
	IP        string  `json:"ip"`
	Latency   float64 `json:"latency"`
}

// FromObservation converts an observation into its record form.
func FromObservation(obs ping.Observation) Entry {
	return Entry{Timestamp: obs.FormatTimestamp(), IP: obs.Address, Latency: obs.Latency}
}

// Observation parses the record back into an observation in local time.
func (e Entry) Observation() (ping.Observation, error) {
	ts, err := time.ParseInLocation(ping.TimestampLayout, e.Timestamp, time.Local)
	if err != nil {
		return ping.Observation{}, fmt.Errorf("parse timestamp %q: %w", e.Timestamp, err)
	}
	return ping.Observation{Timestamp: ts, Address: e.IP, Latency: e.Latency}, nil
}

// FileName returns the record file name for an observation of hostname.
func FileName(obs ping.Observation, hostname string) string {
	return strings.ReplaceAll(obs.FormatTimestamp(), ":", "") + "_" + hostname + ".json"
}

// FileStore writes one JSON file per observation.
type FileStore struct{}

// NewFileStore returns an append-only record store.
func NewFileStore() *FileStore {
	return &FileStore{}
}

// Persist writes obs to outputDir and returns the file path.
// The directory is not created; a missing directory is reported to the caller.
func (s *FileStore) Persist(obs ping.Observation, hostname, outputDir string) (string, error) {
	data, err := json.Marshal(FromObservation(obs))
	if err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrPersist, err)
	}

	path := filepath.Join(outputDir, FileName(obs, hostname))
	tmp, err := os.CreateTemp(outputDir, ".record-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPersist, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: write %s: %w", ErrPersist, path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: write %s: %w", ErrPersist, path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: %w", ErrPersist, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("%w: replace %s: %w", ErrPersist, path, err)
	}
	return path, nil
}
