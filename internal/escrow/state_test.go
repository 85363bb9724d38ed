package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairlens/escrow-engine/internal/models"
)

func TestPaidAmount(t *testing.T) {
	f := newFixture(t, 1000)
	f.addMilestone(t, 0, 600)
	f.addMilestone(t, 1, 400)

	assert.Equal(t, uint64(1000), f.state.AllocatedAmount())
	assert.Equal(t, uint64(0), f.state.PaidAmount(), "unpaid milestones do not count")

	f.submitProof(t, 0)
	f.verify(t, 0)
	assert.Equal(t, uint64(0), f.state.PaidAmount(), "verification alone does not pay")

	f.release(t, 0)
	assert.Equal(t, uint64(600), f.state.PaidAmount())
	assert.Equal(t, models.ContractActive, f.state.Contract.Status)

	f.submitProof(t, 1)
	f.verify(t, 1)
	f.release(t, 1)
	assert.Equal(t, uint64(1000), f.state.PaidAmount())
	assert.Equal(t, models.ContractCompleted, f.state.Contract.Status,
		"paying out the full budget completes the contract")
}
