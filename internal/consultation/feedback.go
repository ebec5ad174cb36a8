package consultation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"legaladvisor/internal/logger"
	"legaladvisor/internal/metrics"
	"legaladvisor/internal/models"
)

var (
	ErrInvalidFeedback       = errors.New("feedback must be -1 or 1")
	ErrMissingConsultationID = errors.New("consultation id is required")
)

// FeedbackRecorder writes thumbs up/down ratings. One call, one update, no retry.
type FeedbackRecorder struct {
	store     Store
	publisher Publisher
	log       *logger.Logger
}

func NewFeedbackRecorder(store Store, publisher Publisher, log *logger.Logger) *FeedbackRecorder {
	return &FeedbackRecorder{store: store, publisher: publisher, log: logger.OrNop(log).Named("feedback")}
}

// Record validates value and updates only the feedback field of consultationID.
func (r *FeedbackRecorder) Record(ctx context.Context, consultationID string, value int) error {
	if value != models.FeedbackPositive && value != models.FeedbackNegative {
		metrics.RecordFeedback(strconv.Itoa(value), "invalid")
		return ErrInvalidFeedback
	}
	consultationID = strings.TrimSpace(consultationID)
	if consultationID == "" {
		metrics.RecordFeedback(strconv.Itoa(value), "invalid")
		return ErrMissingConsultationID
	}

	v := value
	err := r.store.Update(ctx, consultationID, models.ConsultationPatch{Feedback: &v})
	if r.publisher != nil {
		r.publisher.PublishFeedback(ctx, consultationID, value, err == nil)
	}
	if err != nil {
		metrics.RecordFeedback(strconv.Itoa(value), "failed")
		r.log.Warn("record feedback", zap.String("consultation_id", consultationID), zap.Error(err))
		return fmt.Errorf("record feedback: %w", err)
	}
	metrics.RecordFeedback(strconv.Itoa(value), "saved")
	return nil
}
