package app

import (
	"errors"
	"testing"

	"shelf/internal/database"
)

func TestNewOperation(t *testing.T) {
	op := NewOperation("mkdir", "Books/Fiction")

	if op.Operation != "mkdir" || op.Parameters != "Books/Fiction" {
		t.Errorf("operation = %+v", op)
	}
	if op.Status != database.StatusSuccess {
		t.Errorf("Status = %q, want %q", op.Status, database.StatusSuccess)
	}
	if op.Persisted() {
		t.Error("new operation should not be persisted")
	}
}

func TestOperation_Fail(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  string
		wantMessage string
	}{
		{name: "nil error keeps success", err: nil, wantStatus: database.StatusSuccess},
		{name: "error marks failure", err: errors.New("disk full"), wantStatus: database.StatusFailed, wantMessage: "disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("rm", "Books")
			op.Fail(tt.err)
			if op.Status != tt.wantStatus || op.Message != tt.wantMessage {
				t.Errorf("after Fail(%v): status %q message %q", tt.err, op.Status, op.Message)
			}
		})
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		id   int64
		want bool
	}{
		{id: 0, want: false},
		{id: 1, want: true},
		{id: 99999, want: true},
	}

	for _, tt := range tests {
		op := &Operation{ID: tt.id}
		if got := op.Persisted(); got != tt.want {
			t.Errorf("Persisted() with ID %d = %v, want %v", tt.id, got, tt.want)
		}
	}
}
