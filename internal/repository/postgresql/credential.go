package postgresql

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"

	"github.com/ecomjrm/fulfillment-sync/internal/db"
	"github.com/ecomjrm/fulfillment-sync/internal/repository"
	"github.com/ecomjrm/fulfillment-sync/internal/storage"
)

// credentialRowID is the key of the only row courier_credentials may hold.
const credentialRowID = 1

type CredentialRepo struct {
	db db.DB
}

func NewCredentialRepo(db db.DB) storage.CredentialRepository {
	return &CredentialRepo{db: db}
}

func (r *CredentialRepo) Get(ctx context.Context) (*repository.CourierCredential, error) {
	var cred repository.CourierCredential
	err := r.db.Get(ctx, &cred, `
        SELECT id, api_key_encrypted, endpoint, updated_by, updated_at
        FROM courier_credentials WHERE id = $1
    `, credentialRowID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrObjectNotFound
		}
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialRepo) UpsertTx(ctx context.Context, tx db.Tx, cred *repository.CourierCredential) error {
	cred.ID = credentialRowID
	_, err := tx.Exec(ctx, `
        INSERT INTO courier_credentials (id, api_key_encrypted, endpoint, updated_by, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET
            api_key_encrypted = EXCLUDED.api_key_encrypted,
            endpoint = EXCLUDED.endpoint,
            updated_by = EXCLUDED.updated_by,
            updated_at = EXCLUDED.updated_at
    `, cred.ID, cred.APIKeyEncrypted, cred.Endpoint, cred.UpdatedBy, cred.UpdatedAt)
	return err
}

func (r *CredentialRepo) DeleteTx(ctx context.Context, tx db.Tx) (bool, error) {
	tag, err := tx.Exec(ctx, "DELETE FROM courier_credentials WHERE id = $1", credentialRowID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
