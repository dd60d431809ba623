package freeslot

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"freeslotd/internal/model"
)

// The cache file is a JSON object mapping ISO-8601 date strings to
// arrays of RFC 3339 slot instants:
//
//	{"2026-09-01": ["2026-09-01T09:00:00+10:00", ...]}
//
// It is read once at startup to seed the shared map and rewritten after
// every successful pass.

// LoadCache reads a persisted common free-slot map. A missing file is
// not an error; it yields an empty map.
func LoadCache(path string, loc *time.Location) (model.CommonFreeSlotMap, error) {
	m := make(model.CommonFreeSlotMap)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return nil, err
	}

	raw := make(map[string][]string)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	for dateStr, slotStrs := range raw {
		d, err := model.ParseDate(dateStr)
		if err != nil {
			return nil, err
		}
		slots := make(model.SlotSet, len(slotStrs))
		for _, s := range slotStrs {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, err
			}
			slots.Add(t.In(loc))
		}
		if sorted := slots.Sorted(); len(sorted) > 0 {
			m[d] = sorted
		}
	}
	return m, nil
}

// SaveCache writes the map atomically: temp file in the target
// directory, fsync, rename. A crash mid-write never leaves a truncated
// cache behind.
func SaveCache(path string, m model.CommonFreeSlotMap) error {
	if path == "" {
		return errors.New("cache path is empty")
	}

	raw := make(map[string][]string, len(m))
	for d, slots := range m {
		strs := make([]string, 0, len(slots))
		for _, t := range slots {
			strs = append(strs, t.Format(time.RFC3339))
		}
		raw[d.String()] = strs
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".freeslotd-cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
