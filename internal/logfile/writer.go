package logfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pavelanni/dialoglog/internal/model"
)

// WriteOption adjusts how Write persists a record.
type WriteOption func(*writeOptions)

type writeOptions struct {
	replace bool
}

// WithReplace allows Write to overwrite an existing file with the same
// name. Checkpointing an in-progress session rewrites the same file after
// every exchange, and sealing the session replaces the last checkpoint.
func WithReplace() WriteOption {
	return func(o *writeOptions) { o.replace = true }
}

// Filename returns the canonical file name for a record:
// dialog_<YYYYMMDD>_<HHMMSS>_<sessionID>.json, derived from the session
// start time and identifier. The name is stable for the whole life of a
// session, so a checkpoint and the sealed record land in the same file.
func Filename(rec *model.DialogLog) string {
	return fmt.Sprintf("dialog_%s_%s.json",
		rec.SessionInfo.StartTime.Format("20060102_150405"),
		rec.SessionInfo.SessionID)
}

// Write validates rec and persists it to dir as a pretty-printed JSON
// document. The document is written to a temporary file in dir first and
// renamed into place, so a crash never leaves a half-written log behind.
// Without WithReplace, Write refuses to overwrite an existing file. It
// returns the full path of the written file.
func Write(dir string, rec *model.DialogLog, opts ...WriteOption) (string, error) {
	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	if err := Validate(rec); err != nil {
		return "", &WriteError{Err: err}
	}

	path := filepath.Join(dir, Filename(rec))
	if !o.replace {
		if _, err := os.Stat(path); err == nil {
			return "", &WriteError{Path: path, Err: errors.New("file already exists")}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", &WriteError{Path: path, Err: err}
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".dialog-*.tmp")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", &WriteError{Path: path, Err: err}
	}
	return path, nil
}
