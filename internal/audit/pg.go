package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verbatimhq/authcore/internal/observability/logger"
)

// PGSink appends events to the audit_event table. Insert failures are
// logged, never propagated.
type PGSink struct {
	Pool *pgxpool.Pool
}

func (s *PGSink) Record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	var detail []byte
	if len(ev.Detail) > 0 {
		detail, _ = json.Marshal(ev.Detail)
	}

	_, err := s.Pool.Exec(ctx, `
		INSERT INTO audit_event (id, action, actor, resource_type, resource_id, ip_address, user_agent, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.NewString(), ev.Action, nullable(ev.Actor), nullable(ev.ResourceType),
		nullable(ev.ResourceID), nullable(ev.IP), nullable(ev.UserAgent), detail, ev.At,
	)
	if err != nil {
		logger.L().Error("audit insert failed",
			logger.Component("audit"), logger.String("action", ev.Action), logger.Err(err))
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
