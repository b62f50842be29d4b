package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"learnbot/internal/models"

	"github.com/jmhodges/clock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Partnerships stores study partnerships and resolves a user's active partner
type Partnerships struct {
	db        *gorm.DB
	clk       clock.Clock
	inviteTTL time.Duration
}

// NewPartnerships creates a partnership store. Pending invitations older than inviteTTL
// can no longer be accepted.
func NewPartnerships(db *gorm.DB, clk clock.Clock, inviteTTL time.Duration) *Partnerships {
	if clk == nil {
		clk = clock.New()
	}
	return &Partnerships{db: db, clk: clk, inviteTTL: inviteTTL}
}

// ActivePartnerOf returns the other party of the user's active partnership in the server
func (s *Partnerships) ActivePartnerOf(ctx context.Context, userID, serverID string) (string, bool, error) {
	var p models.Partnership
	err := activeFor(s.db.WithContext(ctx), userID, serverID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, translate("find partner", err)
	}
	return p.Other(userID), true, nil
}

// AllRecipientsFor returns the user followed by their active partner in the server, if any
func (s *Partnerships) AllRecipientsFor(ctx context.Context, userID, serverID string) ([]string, error) {
	partner, ok, err := s.ActivePartnerOf(ctx, userID, serverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{userID}, nil
	}
	return []string{userID, partner}, nil
}

// ActivePartnerships lists every active partnership across all servers
func (s *Partnerships) ActivePartnerships(ctx context.Context) ([]models.Partnership, error) {
	var partnerships []models.Partnership
	err := s.db.WithContext(ctx).
		Where("status = ?", models.PartnershipActive).
		Find(&partnerships).Error
	if err != nil {
		return nil, translate("list partnerships", err)
	}
	return partnerships, nil
}

// Invite creates a pending invitation from inviter to invitee in a server
func (s *Partnerships) Invite(ctx context.Context, inviterID, inviteeID, serverID string) (*models.Partnership, error) {
	if inviterID == "" || inviteeID == "" || serverID == "" {
		return nil, fmt.Errorf("invite partner: %w: inviter, invitee and server are required", ErrInvalidInput)
	}
	if inviterID == inviteeID {
		return nil, fmt.Errorf("invite partner: %w", ErrSelfPartner)
	}

	now := s.clk.Now()
	var invite models.Partnership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUnpartnered(tx, serverID, inviterID, inviteeID); err != nil {
			return err
		}

		var pending int64
		err := tx.Model(&models.Partnership{}).
			Where("server_id = ? AND status = ? AND created_at >= ?", serverID, models.PartnershipPending, s.cutoff(now)).
			Where("(user_a = ? AND user_b = ?) OR (user_a = ? AND user_b = ?) OR user_b = ?",
				inviterID, inviteeID, inviteeID, inviterID, inviteeID).
			Count(&pending).Error
		if err != nil {
			return err
		}
		if pending > 0 {
			return ErrInvitePending
		}

		// drop this pair's expired invitations so only the fresh one can be accepted
		err = tx.Where("server_id = ? AND status = ? AND created_at < ? AND user_a = ? AND user_b = ?",
			serverID, models.PartnershipPending, s.cutoff(now), inviterID, inviteeID).
			Delete(&models.Partnership{}).Error
		if err != nil {
			return err
		}

		invite = models.Partnership{
			UserA:     inviterID,
			UserB:     inviteeID,
			ServerID:  serverID,
			Status:    models.PartnershipPending,
			CreatedAt: now.UTC(),
		}
		return tx.Create(&invite).Error
	})
	if err != nil {
		return nil, translate("invite partner", err)
	}
	return &invite, nil
}

// Accept activates the invitation inviter sent to invitee. Any other pending invitations
// involving either user in the server are withdrawn.
func (s *Partnerships) Accept(ctx context.Context, inviteeID, inviterID, serverID string) (*models.Partnership, error) {
	now := s.clk.Now()
	var invite models.Partnership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// expired invitations may linger until ExpirePending runs
		err := tx.Where("user_a = ? AND user_b = ? AND server_id = ? AND status = ? AND created_at >= ?",
			inviterID, inviteeID, serverID, models.PartnershipPending, s.cutoff(now)).
			Order("created_at DESC").
			First(&invite).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoPendingInvite
		}
		if err != nil {
			return err
		}

		if err := s.ensureUnpartnered(tx, serverID, inviterID, inviteeID); err != nil {
			return err
		}

		accepted := now.UTC()
		invite.Status = models.PartnershipActive
		invite.AcceptedAt = &accepted
		if err := tx.Model(&invite).Updates(map[string]interface{}{
			"status":      models.PartnershipActive,
			"accepted_at": &accepted,
		}).Error; err != nil {
			return err
		}

		return tx.Where("server_id = ? AND status = ? AND id <> ?", serverID, models.PartnershipPending, invite.ID).
			Where("user_a IN ? OR user_b IN ?", []string{inviterID, inviteeID}, []string{inviterID, inviteeID}).
			Delete(&models.Partnership{}).Error
	})
	if err != nil {
		return nil, translate("accept partner", err)
	}
	return &invite, nil
}

// Decline deletes the invitation inviter sent to invitee
func (s *Partnerships) Decline(ctx context.Context, inviteeID, inviterID, serverID string) error {
	result := s.db.WithContext(ctx).
		Where("user_a = ? AND user_b = ? AND server_id = ? AND status = ?",
			inviterID, inviteeID, serverID, models.PartnershipPending).
		Delete(&models.Partnership{})
	if result.Error != nil {
		return translate("decline partner", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("decline partner: %w", ErrNoPendingInvite)
	}
	return nil
}

// Leave ends the user's active partnership in the server and returns the former partner
func (s *Partnerships) Leave(ctx context.Context, userID, serverID string) (string, error) {
	var p models.Partnership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := activeFor(tx, userID, serverID).First(&p).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
	if err != nil {
		return "", translate("leave partnership", err)
	}
	return p.Other(userID), nil
}

// ExpirePending deletes invitations that were not accepted within the invite window
func (s *Partnerships) ExpirePending(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.PartnershipPending, s.cutoff(s.clk.Now())).
		Delete(&models.Partnership{})
	if result.Error != nil {
		return 0, translate("expire invitations", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Partnerships) cutoff(now time.Time) time.Time {
	return now.Add(-s.inviteTTL).UTC()
}

// ensureUnpartnered fails when any of the users already has an active partner in the server.
// Every partnership row involving the users is locked for the rest of the transaction, so
// two accepts sharing a user are serialized and the later one sees the earlier's result.
func (s *Partnerships) ensureUnpartnered(tx *gorm.DB, serverID string, userIDs ...string) error {
	var rows []models.Partnership
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("server_id = ?", serverID).
		Where("user_a IN ? OR user_b IN ?", userIDs, userIDs).
		Find(&rows).Error
	if err != nil {
		return err
	}
	for _, p := range rows {
		if p.Status == models.PartnershipActive {
			return ErrAlreadyPartnered
		}
	}
	return nil
}

func activeFor(db *gorm.DB, userID, serverID string) *gorm.DB {
	return db.Where("server_id = ? AND status = ?", serverID, models.PartnershipActive).
		Where("user_a = ? OR user_b = ?", userID, userID)
}
