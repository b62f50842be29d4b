package services

import (
	"testing"

	"learnbot/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPartnerIndex(t *testing.T) {
	ix := NewPartnerIndex([]models.Partnership{
		active("U1", "U2", "S1"),
		active("U1", "U3", "S2"),
		{UserA: "U4", UserB: "U5", ServerID: "S1", Status: models.PartnershipPending},
	})

	partner, ok := ix.PartnerOf("U2", "S1")
	assert.True(t, ok)
	assert.Equal(t, "U1", partner)

	partner, ok = ix.PartnerOf("U1", "S2")
	assert.True(t, ok)
	assert.Equal(t, "U3", partner)

	_, ok = ix.PartnerOf("U4", "S1")
	assert.False(t, ok, "pending partnerships are ignored")

	assert.Equal(t, []string{"U1", "U2"}, ix.RecipientsFor("U1", "S1"))
	assert.Equal(t, []string{"U2"}, ix.RecipientsFor("U2", "S2"))
	assert.Equal(t, 4, ix.Len())
}

func TestNilPartnerIndex(t *testing.T) {
	var ix *PartnerIndex
	_, ok := ix.PartnerOf("U1", "S1")
	assert.False(t, ok)
	assert.Equal(t, []string{"U1"}, ix.RecipientsFor("U1", "S1"))
	assert.Zero(t, ix.Len())
}
