package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clinicore/shield/services/logging"
)

// Logger writes security events to the application log and the audit
// table. It never returns an error: a failed write is reported on the
// fallback log channel and the triggering operation continues.
type Logger struct {
	db     *gorm.DB
	logger *logging.Service
	now    func() time.Time
}

func NewLogger(db *gorm.DB, logger *logging.Service) *Logger {
	return &Logger{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

func (l *Logger) Log(ctx context.Context, event Event) {
	if l == nil {
		return
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = l.now()
	}

	fields := []zap.Field{
		zap.String("audit_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("ip", event.IP),
		zap.String("path", event.Path),
	}
	if event.UserID != 0 {
		fields = append(fields, zap.Uint("user_id", event.UserID))
	}

	switch event.Severity {
	case SeverityCritical:
		l.logger.Error(event.Description, fields...)
	case SeverityWarning:
		l.logger.Warn(event.Description, fields...)
	default:
		l.logger.Info(event.Description, fields...)
	}

	if l.db == nil {
		return
	}

	if err := l.db.WithContext(ctx).Create(&event).Error; err != nil {
		l.logger.Error("failed to persist audit event",
			zap.String("event_type", event.Type),
			zap.Error(err))
	}
}

// WithMetadata attaches structured metadata to an event, dropping it
// silently if it cannot be encoded.
func WithMetadata(event Event, metadata map[string]any) Event {
	if len(metadata) == 0 {
		return event
	}
	if encoded, err := json.Marshal(metadata); err == nil {
		event.Metadata = string(encoded)
	}
	return event
}
