package postgresql

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

const insertAuditLog = `
        INSERT INTO audit_logs (id, action, resource, resource_id, actor_id, details, ip_address, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `

type AuditRepo struct {
	db db.DB
}

func NewAuditRepo(db db.DB) storage.AuditRepository {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) CreateTx(ctx context.Context, tx db.Tx, e *repository.AuditLog) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := tx.Exec(ctx, insertAuditLog, e.ID, e.Action, e.Resource, e.ResourceID, e.ActorID, e.Details, e.IPAddress, e.UserAgent, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

func (r *AuditRepo) CreateBatch(ctx context.Context, entries []*repository.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithTx(ctx, r.db, func(tx db.Tx) error {
		for _, e := range entries {
			if err := r.CreateTx(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// List returns one page of entries, newest first, and the total number of
// entries matching the filter.
func (r *AuditRepo) List(ctx context.Context, filter repository.AuditFilter) ([]*repository.AuditLog, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("action", filter.Action)
	add("resource", filter.Resource)
	add("resource_id", filter.ResourceID)

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.Get(ctx, &total, "SELECT COUNT(*) FROM audit_logs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	query := "SELECT id, action, resource, resource_id, actor_id, details, ip_address, user_agent, created_at FROM audit_logs" +
		where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit, filter.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	var entries []*repository.AuditLog
	if err := r.db.Select(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, total, nil
}
