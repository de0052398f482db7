// Package batch runs the purchase flow for every configured account in turn.
package batch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
	"github.com/ternarybob/autobond/internal/services/dialog"
	"github.com/ternarybob/autobond/internal/services/purchase"
)

// Purchaser runs the whole flow for one user
type Purchaser interface {
	Run(ctx context.Context, user models.UserCredential) (purchase.Report, error)
}

// Summary describes one batch run
type Summary struct {
	RunID     string
	StartedAt time.Time
	Records   []models.RunRecord
	Counts    map[models.OutcomeKind]int
}

// Failures is the number of users whose outcome is Failed
func (s Summary) Failures() int {
	return s.Counts[models.OutcomeFailed]
}

// Runner processes users strictly one after another
type Runner struct {
	purchaser Purchaser
	notifier  interfaces.Notifier
	storage   interfaces.RunStorage
	logger    arbor.ILogger
	now       func() time.Time
}

// NewRunner wires the runner. storage may be nil when history is disabled.
func NewRunner(purchaser Purchaser, notifier interfaces.Notifier, storage interfaces.RunStorage, logger arbor.ILogger) *Runner {
	return &Runner{
		purchaser: purchaser,
		notifier:  notifier,
		storage:   storage,
		logger:    logger,
		now:       time.Now,
	}
}

// Run processes users in order. One user's failure never stops the next;
// only a cancelled context ends the batch early.
func (r *Runner) Run(ctx context.Context, users []models.UserCredential) Summary {
	runID := uuid.New().String()
	logger := r.logger.WithCorrelationId(runID)

	summary := Summary{
		RunID:     runID,
		StartedAt: r.now(),
		Counts:    make(map[models.OutcomeKind]int),
	}

	logger.Info().Str("run_id", runID).Int("users", len(users)).Msg("Batch run started")

	for i, user := range users {
		if ctx.Err() != nil {
			logger.Warn().Int("remaining", len(users)-i).Msg("Batch run cancelled")
			break
		}

		record := r.runUser(ctx, logger, runID, user)
		summary.Records = append(summary.Records, record)
		summary.Counts[record.Kind]++
	}

	logger.Info().
		Str("run_id", runID).
		Int("submitted", summary.Counts[models.OutcomeSubmitted]).
		Int("no_bonds", summary.Counts[models.OutcomeNoPurchasableBonds]).
		Int("non_trading", summary.Counts[models.OutcomeNonTradingDay]).
		Int("failed", summary.Counts[models.OutcomeFailed]).
		Str("elapsed", r.now().Sub(summary.StartedAt).String()).
		Msg("Batch run finished")

	return summary
}

// runUser produces exactly one outcome for user, whatever happens inside the flow
func (r *Runner) runUser(ctx context.Context, logger arbor.ILogger, runID string, user models.UserCredential) models.RunRecord {
	started := r.now()
	report := r.purchase(ctx, logger, user)
	outcome := report.Outcome

	// The outcome is delivered even when the run was interrupted mid-user
	r.notifier.Send(context.WithoutCancel(ctx), outcome.Text(), user.Account)

	record := models.RunRecord{
		ID:         uuid.New().String(),
		RunID:      runID,
		Account:    user.Masked(),
		Kind:       outcome.Kind,
		Message:    outcome.Message,
		Attempts:   report.Attempts,
		StartedAt:  started,
		FinishedAt: r.now(),
	}

	if r.storage != nil {
		if err := r.storage.Save(ctx, &record); err != nil {
			logger.Warn().Err(err).Str("account", record.Account).Msg("Failed to save run record")
		}
	}
	return record
}

func (r *Runner) purchase(ctx context.Context, logger arbor.ILogger, user models.UserCredential) (report purchase.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", string(debug.Stack())).
				Str("account", user.Masked()).
				Msg("Recovered panic in purchase flow")
			report.Outcome = models.Failed(dialog.Normalize(fmt.Sprintf("%v", rec)))
		}
	}()

	report, err := r.purchaser.Run(ctx, user)
	if err != nil {
		logger.Error().Err(err).Str("account", user.Masked()).Int("attempts", report.Attempts).Msg("Purchase failed")
		if !report.Outcome.IsFailure() {
			report.Outcome = models.Failed(dialog.Normalize(err.Error()))
		}
	}
	return report
}
