package models

import (
	"testing"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    BuildStatus
		to      BuildStatus
		wantErr bool
	}{
		// Valid transitions
		{"Importing to Pending", StatusImporting, StatusPending, false},
		{"Pending to Starting", StatusPending, StatusStarting, false},
		{"Pending to Skipped", StatusPending, StatusSkipped, false},
		{"Starting to Running", StatusStarting, StatusRunning, false},
		{"Running to Succeeded", StatusRunning, StatusSucceeded, false},
		{"Running to Failed", StatusRunning, StatusFailed, false},
		{"Running back to Pending", StatusRunning, StatusPending, false},
		{"Same state", StatusSucceeded, StatusSucceeded, false},

		// Invalid transitions
		{"Importing to Running", StatusImporting, StatusRunning, true},
		{"Succeeded to Running", StatusSucceeded, StatusRunning, true},
		{"Failed to Pending", StatusFailed, StatusPending, true},
		{"Canceled to Pending", StatusCanceled, StatusPending, true},
		{"Forked to Failed", StatusForked, StatusFailed, true},
		{"Unknown source", StatusUnknown, StatusPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTransition(%v, %v) error = %v, wantErr %v",
					tt.from, tt.to, err, tt.wantErr)
			}
		})
	}
}

func TestIsFinished(t *testing.T) {
	tests := []struct {
		state    BuildStatus
		expected bool
	}{
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCanceled, true},
		{StatusSkipped, true},
		{StatusForked, true},
		{StatusPending, false},
		{StatusRunning, false},
		{StatusStarting, false},
		{StatusImporting, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := IsFinished(tt.state); got != tt.expected {
				t.Errorf("IsFinished(%v) = %v, want %v", tt.state, got, tt.expected)
			}
		})
	}
}
