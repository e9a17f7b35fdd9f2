package instance

import (
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
)

func TestDetermineStatus(t *testing.T) {
	testCases := []struct {
		name       string
		containers []types.Container
		expected   Status
	}{
		{name: "all running", containers: []types.Container{{State: "running"}, {State: "running"}}, expected: StatusRunning},
		{name: "all stopped", containers: []types.Container{{State: "exited"}, {State: "exited"}}, expected: StatusStopped},
		{name: "degraded", containers: []types.Container{{State: "running"}, {State: "exited"}}, expected: StatusDegraded},
		{name: "no containers", containers: nil, expected: StatusStopped},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, DetermineStatus(tc.containers))
		})
	}
}
