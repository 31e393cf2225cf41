package model

import "testing"

func TestTerminalJobStatus(t *testing.T) {
	tests := []struct {
		success int
		failure int
		want    BatchJobStatus
	}{
		{10, 0, JobCompleted},
		{0, 10, JobFailed},
		{7, 3, JobPartiallyFailed},
		{0, 0, JobCompleted},
	}

	for _, tt := range tests {
		if got := TerminalJobStatus(tt.success, tt.failure); got != tt.want {
			t.Errorf("TerminalJobStatus(%d, %d) = %s, want %s", tt.success, tt.failure, got, tt.want)
		}
	}
}

func TestBatchJobStatusIsTerminal(t *testing.T) {
	terminal := []BatchJobStatus{JobCompleted, JobFailed, JobPartiallyFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	active := []BatchJobStatus{JobPending, JobProcessing}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
