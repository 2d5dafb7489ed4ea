package core

import (
	"errors"
	"testing"
)

func TestValidateIngestOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    IngestOptions
		wantErr error
	}{
		{
			name:    "valid recursive",
			opts:    IngestOptions{SplittingMethod: SplitRecursive, ChunkSize: 100, ChunkOverlap: 10},
			wantErr: nil,
		},
		{
			name:    "valid structural without overlap",
			opts:    IngestOptions{SplittingMethod: SplitStructural, ChunkSize: 500},
			wantErr: nil,
		},
		{
			name:    "zero chunk size",
			opts:    IngestOptions{SplittingMethod: SplitRecursive, ChunkSize: 0},
			wantErr: ErrInvalidChunkSize,
		},
		{
			name:    "negative chunk size",
			opts:    IngestOptions{SplittingMethod: SplitRecursive, ChunkSize: -5},
			wantErr: ErrInvalidChunkSize,
		},
		{
			name:    "negative overlap",
			opts:    IngestOptions{SplittingMethod: SplitRecursive, ChunkSize: 10, ChunkOverlap: -1},
			wantErr: ErrInvalidChunkOverlap,
		},
		{
			name:    "overlap equal to size",
			opts:    IngestOptions{SplittingMethod: SplitRecursive, ChunkSize: 10, ChunkOverlap: 10},
			wantErr: ErrInvalidChunkOverlap,
		},
		{
			name:    "unknown method",
			opts:    IngestOptions{ChunkSize: 10},
			wantErr: ErrInvalidSplittingMethod,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIngestOptions(tt.opts)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateIngestOptions() unexpected error = %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("ValidateIngestOptions() expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateIngestOptions() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("ValidateIngestOptions() error = %v, want it to wrap ErrValidation", err)
			}
		})
	}
}

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name      string
		vector    *Vector
		dimension int
		wantErr   error
	}{
		{
			name:      "valid",
			vector:    &Vector{Id: "a", Values: []float32{1, 2, 3}},
			dimension: 3,
		},
		{
			name:      "dimension not enforced",
			vector:    &Vector{Id: "a", Values: []float32{1}},
			dimension: 0,
		},
		{
			name:    "nil vector",
			vector:  nil,
			wantErr: ErrValidation,
		},
		{
			name:    "missing id",
			vector:  &Vector{Values: []float32{1}},
			wantErr: ErrEmptyVectorID,
		},
		{
			name:    "missing values",
			vector:  &Vector{Id: "a"},
			wantErr: ErrEmptyVector,
		},
		{
			name:      "wrong dimension",
			vector:    &Vector{Id: "a", Values: []float32{1, 2}},
			dimension: 3,
			wantErr:   ErrIndexConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.vector, tt.dimension)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateVector() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateVector() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTruncateBytes(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		limit int
		want  string
	}{
		{name: "shorter than limit", in: "abc", limit: 10, want: "abc"},
		{name: "exact", in: "abc", limit: 3, want: "abc"},
		{name: "ascii cut", in: "abcdef", limit: 4, want: "abcd"},
		{name: "does not split multibyte rune", in: "aé", limit: 2, want: "a"},
		{name: "zero limit", in: "abc", limit: 0, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateBytes(tt.in, tt.limit); got != tt.want {
				t.Errorf("TruncateBytes(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
			}
		})
	}
}
