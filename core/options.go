package core

import (
	"fmt"
	"strings"
)

// SplittingMethod selects how documents are cut into chunks.
type SplittingMethod int

const (
	// SplitRecursive divides text on paragraph, sentence, word and character boundaries.
	SplitRecursive SplittingMethod = iota + 1
	// SplitStructural divides markdown at headings and list items first.
	SplitStructural
)

// String returns the wire name of the method.
func (m SplittingMethod) String() string {
	switch m {
	case SplitRecursive:
		return "recursive"
	case SplitStructural:
		return "structural"
	default:
		return fmt.Sprintf("SplittingMethod(%d)", int(m))
	}
}

// ParseSplittingMethod maps a wire name onto a SplittingMethod.
// "markdown" is accepted as an alias of "structural".
func ParseSplittingMethod(s string) (SplittingMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "recursive":
		return SplitRecursive, nil
	case "structural", "markdown":
		return SplitStructural, nil
	default:
		return 0, &ValidationError{
			Field:  "splittingMethod",
			Reason: fmt.Sprintf("unknown splitting method %q", s),
			Err:    ErrInvalidSplittingMethod,
		}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m SplittingMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SplittingMethod) UnmarshalText(text []byte) error {
	parsed, err := ParseSplittingMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// DocumentStrategy selects how source records become documents.
type DocumentStrategy int

const (
	// StrategyWholeRecord joins every field value into one document per record.
	StrategyWholeRecord DocumentStrategy = iota + 1
	// StrategyPerField emits one "name: value" document per non-empty field.
	StrategyPerField
	// StrategyJSON serializes each record as a JSON object in header order.
	StrategyJSON
)

func (s DocumentStrategy) String() string {
	switch s {
	case StrategyWholeRecord:
		return "record"
	case StrategyPerField:
		return "field"
	case StrategyJSON:
		return "json"
	default:
		return fmt.Sprintf("DocumentStrategy(%d)", int(s))
	}
}

// ParseDocumentStrategy maps a configuration value onto a DocumentStrategy.
func ParseDocumentStrategy(s string) (DocumentStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "record", "whole-record":
		return StrategyWholeRecord, nil
	case "field", "per-field":
		return StrategyPerField, nil
	case "json":
		return StrategyJSON, nil
	default:
		return 0, &ValidationError{Field: "documentStrategy", Reason: fmt.Sprintf("unknown document strategy %q", s)}
	}
}

// IngestOptions controls how a single ingestion splits its documents.
type IngestOptions struct {
	SplittingMethod SplittingMethod `json:"splittingMethod"`
	ChunkSize       int             `json:"chunkSize"`
	ChunkOverlap    int             `json:"chunkOverlap"`
}

// DefaultIngestOptions mirrors the values the seeding script used.
func DefaultIngestOptions() IngestOptions {
	return IngestOptions{
		SplittingMethod: SplitRecursive,
		ChunkSize:       100,
		ChunkOverlap:    10,
	}
}

// Validate checks the options, see ValidateIngestOptions.
func (o IngestOptions) Validate() error {
	return ValidateIngestOptions(o)
}
