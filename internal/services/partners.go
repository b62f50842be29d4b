package services

import "learnbot/internal/models"

type partnerKey struct {
	serverID string
	userID   string
}

// PartnerIndex answers partner lookups for one sweep pass from a single load of all
// active partnerships
type PartnerIndex struct {
	partners map[partnerKey]string
}

// NewPartnerIndex indexes both directions of every active partnership
func NewPartnerIndex(partnerships []models.Partnership) *PartnerIndex {
	ix := &PartnerIndex{partners: make(map[partnerKey]string, 2*len(partnerships))}
	for _, p := range partnerships {
		if p.Status != models.PartnershipActive {
			continue
		}
		ix.add(p.ServerID, p.UserA, p.UserB)
		ix.add(p.ServerID, p.UserB, p.UserA)
	}
	return ix
}

func (ix *PartnerIndex) add(serverID, userID, partnerID string) {
	key := partnerKey{serverID: serverID, userID: userID}
	if _, exists := ix.partners[key]; exists {
		return
	}
	ix.partners[key] = partnerID
}

// PartnerOf returns the user's active partner in the server
func (ix *PartnerIndex) PartnerOf(userID, serverID string) (string, bool) {
	if ix == nil {
		return "", false
	}
	partner, ok := ix.partners[partnerKey{serverID: serverID, userID: userID}]
	return partner, ok
}

// RecipientsFor returns the user and, if present, their partner in the server
func (ix *PartnerIndex) RecipientsFor(userID, serverID string) []string {
	if partner, ok := ix.PartnerOf(userID, serverID); ok {
		return []string{userID, partner}
	}
	return []string{userID}
}

// Len returns the number of indexed user/server pairs
func (ix *PartnerIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.partners)
}
