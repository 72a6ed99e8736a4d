package review

import (
	"context"
	"fmt"

	"github.com/overseerd/overseer/pkg/logging"
	"github.com/overseerd/overseer/pkg/models"
	"github.com/overseerd/overseer/pkg/store"
)

// Reviewer performs the actual quality assessment. Implementations
// call out to whatever judges the work; ratings are 1-10.
type Reviewer interface {
	Review(ctx context.Context, projectID string, sessionNumber int, deep bool) (rating int, err error)
}

// Scheduler builds trigger signals from the store and records outcomes
type Scheduler struct {
	store    store.Store
	reviewer Reviewer
	log      *logging.Logger
}

// NewScheduler creates a review scheduler
func NewScheduler(st store.Store, reviewer Reviewer, log *logging.Logger) *Scheduler {
	return &Scheduler{store: st, reviewer: reviewer, log: log}
}

// SignalFor assembles the deep-review signal for a finished session
func (s *Scheduler) SignalFor(projectID string, sessionNumber int, finalSession bool) (Signal, error) {
	sig := Signal{
		SessionNumber: sessionNumber,
		FinalSession:  finalSession,
	}

	rating, ok, err := s.store.LatestQualityRating(projectID)
	if err != nil {
		return sig, fmt.Errorf("failed to load latest quality rating: %w", err)
	}
	if ok {
		sig.LastQuality = rating
	}

	lastDeep, ok, err := s.store.LastDeepReviewSession(projectID)
	if err != nil {
		return sig, fmt.Errorf("failed to load last deep review: %w", err)
	}
	if ok {
		sig.DeepReviewed = true
		sig.SessionsSinceDeepReview = sessionNumber - lastDeep
	}

	return sig, nil
}

// Run performs the post-session quality pass: a quick check always,
// plus a deep review when the signal calls for one. The deep review
// rating is the one recorded against the session.
func (s *Scheduler) Run(ctx context.Context, sess *models.Session, finalSession bool) error {
	if sess.Type == models.SessionTypeInitializer {
		return nil
	}

	sig, err := s.SignalFor(sess.ProjectID, sess.Number, finalSession)
	if err != nil {
		return err
	}

	rating, err := s.reviewer.Review(ctx, sess.ProjectID, sess.Number, false)
	if err != nil {
		return fmt.Errorf("quick check failed: %w", err)
	}
	if err := s.record(sess, "quick", rating); err != nil {
		return err
	}

	if !ShouldTrigger(sig) {
		return nil
	}

	s.log.Info("deep review triggered", map[string]interface{}{
		"project_id":     sess.ProjectID,
		"session_number": sess.Number,
		"final_session":  finalSession,
	})

	rating, err = s.reviewer.Review(ctx, sess.ProjectID, sess.Number, true)
	if err != nil {
		return fmt.Errorf("deep review failed: %w", err)
	}
	return s.record(sess, "deep", rating)
}

func (s *Scheduler) record(sess *models.Session, checkType string, rating int) error {
	return s.store.RecordQualityCheck(&models.QualityCheck{
		SessionID:     sess.ID,
		ProjectID:     sess.ProjectID,
		SessionNumber: sess.Number,
		CheckType:     checkType,
		Rating:        rating,
	})
}
