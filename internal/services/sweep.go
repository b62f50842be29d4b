package services

import (
	"context"
	"sync/atomic"
	"time"

	"learnbot/internal/models"
	"learnbot/internal/schedule"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DueStore is the part of the reminder store the sweep reads and advances
type DueStore interface {
	FindDue(ctx context.Context, now time.Time) ([]models.Reminder, error)
	HasDuplicates(ctx context.Context, ownerID, serverID, itemName string) (bool, error)
	Advance(ctx context.Context, id string, nextFireAt, firedAt time.Time) error
}

// PartnerSource lists the active partnerships the sweep fans out to
type PartnerSource interface {
	ActivePartnerships(ctx context.Context) ([]models.Partnership, error)
}

// Renderer turns a recipient's due items into one message
type Renderer interface {
	Render(ctx context.Context, recipientID string, items []DigestItem) (string, error)
}

// SweepOptions tunes a sweep pass
type SweepOptions struct {
	// Concurrency is the number of recipients processed at once
	Concurrency int
	// DeliveryTimeout bounds each Notifier.Deliver call
	DeliveryTimeout time.Duration
	// DryRun renders and delivers digests without advancing any reminder
	DryRun bool
}

// Report summarises one sweep pass
type Report struct {
	RunID            string    `json:"run_id"`
	StartedAt        time.Time `json:"started_at"`
	Due              int       `json:"due"`
	Recipients       int       `json:"recipients"`
	Delivered        int       `json:"delivered"`
	DeliveryFailures int       `json:"delivery_failures"`
	Advanced         int       `json:"advanced"`
	AdvanceFailures  int       `json:"advance_failures"`
	DryRun           bool      `json:"dry_run"`
}

// Sweep finds due reminders, sends each recipient one digest and reschedules every
// owned reminder exactly once
type Sweep struct {
	store    DueStore
	partners PartnerSource
	notifier Notifier
	renderer Renderer
	policy   *schedule.Policy
	opts     SweepOptions
	log      *zap.SugaredLogger
}

// NewSweep creates a sweep over the given collaborators
func NewSweep(store DueStore, partners PartnerSource, notifier Notifier, renderer Renderer,
	policy *schedule.Policy, opts SweepOptions, log *zap.SugaredLogger) *Sweep {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	return &Sweep{
		store:    store,
		partners: partners,
		notifier: notifier,
		renderer: renderer,
		policy:   policy,
		opts:     opts,
		log:      log.With("component", "sweep"),
	}
}

// recipientDigest is the per-pass grouping of due items for one user
type recipientDigest struct {
	recipientID string
	items       []DigestItem
}

// Run performs one pass. Only a failure to load the due set fails the pass; per-item
// and per-recipient failures are logged and counted in the report. Cancelling ctx stops
// the pass before the next recipient is started.
func (s *Sweep) Run(ctx context.Context) (Report, error) {
	now := s.policy.Now()
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: now,
		DryRun:    s.opts.DryRun,
	}
	log := s.log.With("run_id", report.RunID)

	due, err := s.store.FindDue(ctx, now)
	if err != nil {
		log.Errorw("failed to load due reminders, skipping this pass", "err", err)
		return report, err
	}
	report.Due = len(due)
	if len(due) == 0 {
		log.Infow("no reminders due", "now", now)
		return report, nil
	}

	digests := s.buildDigests(ctx, due, log)
	report.Recipients = len(digests)

	var delivered, deliveryFailures, advanced, advanceFailures atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for _, d := range digests {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			a, af := s.advanceOwned(ctx, d, now, log)
			advanced.Add(int64(a))
			advanceFailures.Add(int64(af))

			if s.deliver(ctx, d, log) {
				delivered.Add(1)
			} else {
				deliveryFailures.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Delivered = int(delivered.Load())
	report.DeliveryFailures = int(deliveryFailures.Load())
	report.Advanced = int(advanced.Load())
	report.AdvanceFailures = int(advanceFailures.Load())

	log.Infow("sweep finished",
		"due", report.Due,
		"recipients", report.Recipients,
		"delivered", report.Delivered,
		"delivery_failures", report.DeliveryFailures,
		"advanced", report.Advanced,
		"advance_failures", report.AdvanceFailures,
		"dry_run", report.DryRun,
	)

	if err := ctx.Err(); err != nil {
		log.Warnw("sweep interrupted", "err", err)
		return report, err
	}
	return report, nil
}

// buildDigests groups due reminders by recipient: every owner, plus the owner's active
// partner in the reminder's server. Recipients keep the order they were first seen in.
func (s *Sweep) buildDigests(ctx context.Context, due []models.Reminder, log *zap.SugaredLogger) []*recipientDigest {
	partners := s.loadPartners(ctx, log)
	names := s.displayNames(ctx, due, log)

	var (
		order  []*recipientDigest
		byUser = make(map[string]*recipientDigest)
		seen   = make(map[string]map[string]bool)
	)
	add := func(recipientID string, r models.Reminder) {
		if seen[recipientID][r.ID] {
			return
		}
		d, ok := byUser[recipientID]
		if !ok {
			d = &recipientDigest{recipientID: recipientID}
			byUser[recipientID] = d
			seen[recipientID] = make(map[string]bool)
			order = append(order, d)
		}
		seen[recipientID][r.ID] = true
		d.items = append(d.items, DigestItem{
			Reminder:    r,
			DisplayName: names[r.ID],
			PartnerItem: r.OwnerID != recipientID,
		})
	}

	for _, r := range due {
		for _, recipientID := range partners.RecipientsFor(r.OwnerID, r.ServerID) {
			add(recipientID, r)
		}
	}
	return order
}

// loadPartners reads all active partnerships once per pass. On failure the pass
// continues with owner-only delivery.
func (s *Sweep) loadPartners(ctx context.Context, log *zap.SugaredLogger) *PartnerIndex {
	if s.partners == nil {
		return NewPartnerIndex(nil)
	}
	partnerships, err := s.partners.ActivePartnerships(ctx)
	if err != nil {
		log.Warnw("partner lookup failed, delivering to owners only", "err", err)
		return NewPartnerIndex(nil)
	}
	index := NewPartnerIndex(partnerships)
	log.Debugw("partners loaded", "pairs", index.Len())
	return index
}

// displayNames asks the store once per distinct owner, server and name
func (s *Sweep) displayNames(ctx context.Context, due []models.Reminder, log *zap.SugaredLogger) map[string]string {
	type nameKey struct{ owner, server, item string }

	dup := make(map[nameKey]bool)
	names := make(map[string]string, len(due))
	for _, r := range due {
		key := nameKey{r.OwnerID, r.ServerID, r.ItemName}
		has, checked := dup[key]
		if !checked {
			var err error
			has, err = s.store.HasDuplicates(ctx, r.OwnerID, r.ServerID, r.ItemName)
			if err != nil {
				log.Warnw("duplicate check failed, showing plain name", "reminder_id", r.ID, "err", err)
				has = false
			}
			dup[key] = has
		}
		names[r.ID] = r.DisplayName(has)
	}
	return names
}

// advanceOwned reschedules the recipient's own items. Partner items are advanced in
// their owner's digest.
func (s *Sweep) advanceOwned(ctx context.Context, d *recipientDigest, now time.Time, log *zap.SugaredLogger) (advanced, failed int) {
	for _, item := range d.items {
		if item.PartnerItem {
			continue
		}
		r := item.Reminder

		next, err := s.policy.NextFireAt(r.Frequency, now)
		if err != nil {
			log.Errorw("cannot reschedule reminder", "reminder_id", r.ID, "frequency", r.Frequency, "err", err)
			failed++
			continue
		}
		if s.opts.DryRun {
			log.Infow("dry run: would advance reminder", "reminder_id", r.ID, "next_fire_at", next)
			continue
		}
		if err := s.store.Advance(ctx, r.ID, next, now); err != nil {
			// it stays due and fires again next pass
			log.Errorw("failed to advance reminder", "reminder_id", r.ID, "err", err)
			failed++
			continue
		}
		advanced++
	}
	return advanced, failed
}

// deliver renders and sends the digest, reporting whether it arrived
func (s *Sweep) deliver(ctx context.Context, d *recipientDigest, log *zap.SugaredLogger) bool {
	text, err := s.renderer.Render(ctx, d.recipientID, d.items)
	if err != nil {
		log.Errorw("failed to render digest", "recipient_id", d.recipientID, "err", err)
		return false
	}

	dctx, cancel := context.WithTimeout(ctx, s.opts.DeliveryTimeout)
	defer cancel()

	if err := s.notifier.Deliver(dctx, d.recipientID, text); err != nil {
		log.Warnw("failed to deliver digest", "recipient_id", d.recipientID, "items", len(d.items), "err", err)
		return false
	}
	log.Debugw("digest delivered", "recipient_id", d.recipientID, "items", len(d.items))
	return true
}
