package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanAdvanceTo(t *testing.T) {
	cases := []struct {
		name string
		from MilestoneStatus
		to   MilestoneStatus
		ok   bool
	}{
		{"pending to completed", MilestonePending, MilestoneCompleted, true},
		{"completed to verified", MilestoneCompleted, MilestoneVerified, true},
		{"verified to paid", MilestoneVerified, MilestonePaid, true},
		{"skipping verification", MilestoneCompleted, MilestonePaid, false},
		{"skipping proof", MilestonePending, MilestoneVerified, false},
		{"regression", MilestoneVerified, MilestoneCompleted, false},
		{"paid is terminal", MilestonePaid, MilestonePending, false},
		{"same status", MilestoneCompleted, MilestoneCompleted, false},
		{"unknown source", MilestoneStatus("draft"), MilestoneCompleted, false},
		{"unknown target", MilestonePending, MilestoneStatus("archived"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.ok, tc.from.CanAdvanceTo(tc.to))
		})
	}
}
