package models

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedRecord is returned when a log line cannot be parsed back into a Record.
var ErrMalformedRecord = errors.New("malformed result record")

// Record is one completed unit of work: who ran it, how big it was and how long it took.
type Record struct {
	Identity  string  `json:"identity"`
	Parameter int     `json:"parameter"`
	Duration  float64 `json:"duration_seconds"` // wall-clock seconds
}

// NewRecord builds a Record from a measured elapsed time.
func NewRecord(identity string, parameter int, elapsed time.Duration) Record {
	return Record{
		Identity:  identity,
		Parameter: parameter,
		Duration:  elapsed.Seconds(),
	}
}

// Elapsed returns the duration as a time.Duration.
func (r Record) Elapsed() time.Duration {
	return time.Duration(r.Duration * float64(time.Second))
}

// Validate checks the fields that the log format depends on.
func (r Record) Validate() error {
	if r.Parameter <= 0 {
		return fmt.Errorf("%w: parameter must be positive, got %d", ErrMalformedRecord, r.Parameter)
	}
	if r.Duration < 0 || math.IsNaN(r.Duration) || math.IsInf(r.Duration, 0) {
		return fmt.Errorf("%w: invalid duration %v", ErrMalformedRecord, r.Duration)
	}
	return nil
}

// Line renders the record as a single CSV line terminated by '\n'.
// Plain identities produce `identity,parameter,duration`.
func (r Record) Line() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Write on a bytes.Buffer cannot fail.
	_ = w.Write([]string{
		r.Identity,
		strconv.Itoa(r.Parameter),
		strconv.FormatFloat(r.Duration, 'f', -1, 64),
	})
	w.Flush()
	return buf.Bytes()
}

// String returns the line without its trailing newline.
func (r Record) String() string {
	return strings.TrimSuffix(string(r.Line()), "\n")
}

// ParseRecord parses one log line (with or without trailing newline).
func ParseRecord(line string) (Record, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = 3
	fields, err := r.Read()
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	// A second record on the same "line" means two writes were fused.
	if _, err := r.Read(); err != io.EOF {
		return Record{}, fmt.Errorf("%w: trailing data after record", ErrMalformedRecord)
	}
	return fromFields(fields)
}

// ParseRecords reads every record from a log stream. Errors carry the 1-based line number.
func ParseRecords(rd io.Reader) ([]Record, error) {
	r := csv.NewReader(rd)
	r.FieldsPerRecord = 3
	r.ReuseRecord = true

	var out []Record
	for {
		fields, err := r.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		line, _ := r.FieldPos(0)
		rec, err := fromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func fromFields(fields []string) (Record, error) {
	param, err := strconv.Atoi(fields[1])
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad parameter %q", ErrMalformedRecord, fields[1])
	}
	dur, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad duration %q", ErrMalformedRecord, fields[2])
	}
	rec := Record{Identity: fields[0], Parameter: param, Duration: dur}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}
