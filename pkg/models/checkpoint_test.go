package models

import "testing"

func intp(v int) *int { return &v }

func TestCheckpointValidate(t *testing.T) {
	tests := []struct {
		name          string
		current       *int
		lastCompleted *int
		wantErr       bool
	}{
		{"both nil", nil, nil, false},
		{"only current", intp(3), nil, false},
		{"only last completed", nil, intp(7), false},
		{"last completed below current", intp(6), intp(5), false},
		{"equal ordinals", intp(5), intp(5), true},
		{"last completed ahead of current", intp(4), intp(9), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Checkpoint{
				SessionID:            "sess-1",
				ProjectID:            "proj-1",
				CurrentOrdinal:       tt.current,
				LastCompletedOrdinal: tt.lastCompleted,
			}
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckpointValidateRequiresIDs(t *testing.T) {
	c := &Checkpoint{ProjectID: "proj-1"}
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing session ID")
	}
	c = &Checkpoint{SessionID: "sess-1"}
	if err := c.Validate(); err == nil {
		t.Error("expected error for missing project ID")
	}
}

func TestCheckpointResumeOrdinal(t *testing.T) {
	tests := []struct {
		name          string
		current       *int
		lastCompleted *int
		wantOrdinal   int
		wantOK        bool
	}{
		{"resumes after last completed", intp(12), intp(11), 12, true},
		{"last completed wins without current", nil, intp(11), 12, true},
		{"falls back to current", intp(4), nil, 4, true},
		{"nothing recorded", nil, nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Checkpoint{
				SessionID:            "sess-1",
				ProjectID:            "proj-1",
				CurrentOrdinal:       tt.current,
				LastCompletedOrdinal: tt.lastCompleted,
			}
			got, ok := c.ResumeOrdinal()
			if got != tt.wantOrdinal || ok != tt.wantOK {
				t.Errorf("ResumeOrdinal() = (%d, %v), want (%d, %v)",
					got, ok, tt.wantOrdinal, tt.wantOK)
			}
		})
	}
}
