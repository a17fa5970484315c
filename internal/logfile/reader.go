package logfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/pavelanni/dialoglog/internal/model"
)

// Read loads the dialog log at path and returns its typed record. It
// returns a *ParseError when the file is not a dialog log document (broken
// JSON, or a required block or field absent entirely) and a *SchemaError
// when the document is well-formed but violates the consistency rules.
// Filesystem failures are returned as plain wrapped errors.
func Read(path string) (*model.DialogLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dialog log: %w", err)
	}
	rec, err := Decode(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		var se *SchemaError
		if errors.As(err, &se) {
			se.Path = path
			return nil, se
		}
		return nil, err
	}
	return rec, nil
}

// Decode parses a dialog log document from raw bytes. See Read for the
// error contract.
func Decode(data []byte) (*model.DialogLog, error) {
	// A first pass over the top-level keys distinguishes "block absent"
	// (a parse problem) from "block present but inconsistent" (a schema
	// problem). Unmarshalling straight into the struct would erase that
	// distinction for value-typed blocks like statistics.
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, &ParseError{Err: err}
	}
	for _, key := range []string{"session_info", "exam_config", "questions_and_answers", "statistics"} {
		if _, ok := top[key]; !ok {
			return nil, &ParseError{Err: fmt.Errorf("required field %q absent", key)}
		}
	}

	var rec model.DialogLog
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := requiredFields(&rec); err != nil {
		return nil, &ParseError{Err: err}
	}
	if err := invariants(&rec); err != nil {
		return nil, err
	}
	if rec.Messages == nil {
		rec.Messages = []model.Message{}
	}
	if rec.QuestionsAndAnswers == nil {
		rec.QuestionsAndAnswers = []model.QAEntry{}
	}
	return &rec, nil
}
