package models

import "testing"

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionStatus
		to      SessionStatus
		wantErr bool
	}{
		{"created to running", SessionStatusCreated, SessionStatusRunning, false},
		{"created to failed", SessionStatusCreated, SessionStatusFailed, false},
		{"created to interrupted", SessionStatusCreated, SessionStatusInterrupted, false},
		{"running to paused", SessionStatusRunning, SessionStatusPaused, false},
		{"running to checkpointed", SessionStatusRunning, SessionStatusCheckpointed, false},
		{"running to completed", SessionStatusRunning, SessionStatusCompleted, false},
		{"running to failed", SessionStatusRunning, SessionStatusFailed, false},
		{"running to interrupted", SessionStatusRunning, SessionStatusInterrupted, false},
		{"created skips running", SessionStatusCreated, SessionStatusCompleted, true},
		{"created to paused", SessionStatusCreated, SessionStatusPaused, true},
		{"paused cannot resume in place", SessionStatusPaused, SessionStatusRunning, true},
		{"checkpointed is terminal", SessionStatusCheckpointed, SessionStatusRunning, true},
		{"completed is terminal", SessionStatusCompleted, SessionStatusRunning, true},
		{"failed is terminal", SessionStatusFailed, SessionStatusRunning, true},
		{"interrupted is terminal", SessionStatusInterrupted, SessionStatusRunning, true},
		{"unknown status", SessionStatus("bogus"), SessionStatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%s, %s) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsTerminalStatus(t *testing.T) {
	terminal := []SessionStatus{
		SessionStatusPaused,
		SessionStatusCheckpointed,
		SessionStatusCompleted,
		SessionStatusFailed,
		SessionStatusInterrupted,
	}
	for _, s := range terminal {
		if !IsTerminalStatus(s) {
			t.Errorf("IsTerminalStatus(%s) = false, want true", s)
		}
	}

	nonTerminal := []SessionStatus{
		SessionStatusCreated,
		SessionStatusRunning,
		SessionStatus("bogus"),
	}
	for _, s := range nonTerminal {
		if IsTerminalStatus(s) {
			t.Errorf("IsTerminalStatus(%s) = true, want false", s)
		}
	}
}

func TestIsActiveStatus(t *testing.T) {
	if !IsActiveStatus(SessionStatusCreated) || !IsActiveStatus(SessionStatusRunning) {
		t.Error("created and running should be active")
	}
	if IsActiveStatus(SessionStatusPaused) || IsActiveStatus(SessionStatusCompleted) {
		t.Error("terminal statuses should not be active")
	}
}

func TestSessionTypeFor(t *testing.T) {
	if got := SessionTypeFor(1); got != SessionTypeInitializer {
		t.Errorf("SessionTypeFor(1) = %s, want initializer", got)
	}
	if got := SessionTypeFor(2); got != SessionTypeCoding {
		t.Errorf("SessionTypeFor(2) = %s, want coding", got)
	}
	if got := SessionTypeFor(10); got != SessionTypeCoding {
		t.Errorf("SessionTypeFor(10) = %s, want coding", got)
	}
}
