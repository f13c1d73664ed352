package fraud

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditLog appends entries to the fraud trail. Entries are never updated.
type AuditLog struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewAuditLog(db *gorm.DB, node *snowflake.Node) *AuditLog {
	return &AuditLog{db: db, node: node}
}

// Write inserts entry using tx when given so the entry commits or rolls back
// with the caller's transaction.
func (a *AuditLog) Write(ctx context.Context, tx *gorm.DB, entry *LogEntry) error {
	if tx == nil {
		tx = a.db
	}
	if entry.ID == "" {
		entry.ID = a.node.Generate().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if err := tx.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	zap.L().Info("fraud log written",
		zap.String("event_type", string(entry.EventType)),
		zap.String("campaign_id", entry.CampaignID),
		zap.String("creator_id", entry.CreatorID),
		zap.String("fraud_score", entry.FraudScore.String()),
	)
	return nil
}
