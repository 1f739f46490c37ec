package jobs

import (
	"context"
	"time"

	listsvc "kabonia-backend/internal/application/listings"
	setsvc "kabonia-backend/internal/application/settlement"
	toksvc "kabonia-backend/internal/application/tokenization"
	"kabonia-backend/internal/pkg/ids"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	expireSweepSpec = "@every 1m"
	batchTokenSpec  = "@every 10m"
	staleSweepSpec  = "@every 5m"
	jobTimeout      = 5 * time.Minute

	// staleSettlementAge is how long a pending settlement may stay pending
	// before the sweep treats it as abandoned and hands its inventory back.
	staleSettlementAge = 15 * time.Minute
)

// Scheduler runs the background jobs: the listing expiration sweep, the batch
// tokenization of newly verified projects, and the stale settlement sweep.
type Scheduler struct {
	cron       *cron.Cron
	Listings   *listsvc.Service
	Tokens     *toksvc.Service
	Settlement *setsvc.Service
	Principal  ids.ID
}

func New(listings *listsvc.Service, tokens *toksvc.Service, settlement *setsvc.Service, principal ids.ID) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		Listings:   listings,
		Tokens:     tokens,
		Settlement: settlement,
		Principal:  principal,
	}
}

// Start registers and starts the jobs. Batch tokenization is skipped when no
// service principal is configured: unattended mints must be credited to an
// explicitly configured identity. The stale settlement sweep also runs once
// immediately so settlements orphaned by a crash are resolved at startup.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(expireSweepSpec, s.runExpireSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(staleSweepSpec, s.runStaleSettlementSweep); err != nil {
		return err
	}
	if !s.Principal.IsNil() {
		if _, err := s.cron.AddFunc(batchTokenSpec, s.runBatchTokenization); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("no system principal configured, batch tokenization disabled")
	}
	s.runStaleSettlementSweep()
	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runExpireSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := s.Listings.ExpireDue(ctx)
	if err != nil {
		log.Error().Err(err).Msg("listing expiration sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("expired", n).Msg("listings expired")
	}
}

func (s *Scheduler) runStaleSettlementSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.Settlement.ResolveStale(ctx, staleSettlementAge); err != nil {
		log.Error().Err(err).Msg("stale settlement sweep failed")
	}
}

func (s *Scheduler) runBatchTokenization() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	n, err := s.Tokens.ProcessVerifiedProjects(ctx, s.Principal)
	if err != nil {
		log.Error().Err(err).Msg("batch tokenization failed")
		return
	}
	if n > 0 {
		log.Info().Int("tokenized", n).Msg("verified projects tokenized")
	}
}
