package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptyDir is returned by List when the directory holds no record files.
var ErrEmptyDir = errors.New("no record files found")

const configFileName = "config.json"

// Listed is a record read back from disk.
type Listed struct {
	File string
	Entry
}

// List reads every record in dir whose ip contains ipFilter.
// Unreadable or incomplete files are skipped and returned as problems.
func List(dir, ipFilter string) ([]Listed, []error, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, nil, err
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil, err
	}

	var (
		entries  []Listed
		problems []error
		seen     int
	)
	for _, path := range paths {
		name := filepath.Base(path)
		if name == configFileName {
			continue
		}
		seen++
		entry, err := readEntry(path)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if ipFilter != "" && !strings.Contains(entry.IP, ipFilter) {
			continue
		}
		entries = append(entries, Listed{File: name, Entry: entry})
	}
	if seen == 0 {
		return nil, nil, fmt.Errorf("%s: %w", dir, ErrEmptyDir)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
	return entries, problems, nil
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Entry{}, fmt.Errorf("malformed record: %w", err)
	}
	for _, key := range []string{"timestamp", "ip", "latency"} {
		if _, ok := fields[key]; !ok {
			return Entry{}, fmt.Errorf("missing field %q", key)
		}
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("malformed record: %w", err)
	}
	return entry, nil
}
