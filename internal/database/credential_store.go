package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/johnrirwin/ordo/internal/crypto"
	"github.com/johnrirwin/ordo/internal/logging"
	"github.com/johnrirwin/ordo/internal/models"
)

// CredentialStore holds office vendor logins. Passwords are sealed with the
// keyring and bound to their office and vendor, so a row copied to another
// office will not decrypt.
type CredentialStore struct {
	db      *DB
	keyring *crypto.Keyring
	logger  *logging.Logger
}

// NewCredentialStore creates a new credential store
func NewCredentialStore(db *DB, keyring *crypto.Keyring, logger *logging.Logger) *CredentialStore {
	return &CredentialStore{db: db, keyring: keyring, logger: logger}
}

func credentialBinding(officeID string, vendor models.VendorSlug) string {
	return officeID + "/" + string(vendor)
}

// Upsert stores or replaces a credential. A changed login is assumed good
// until the next attempt says otherwise.
func (s *CredentialStore) Upsert(ctx context.Context, cred *models.VendorCredential) error {
	sealed, err := s.keyring.Seal(cred.Password, credentialBinding(cred.OfficeID, cred.Vendor))
	if err != nil {
		return fmt.Errorf("failed to seal credential: %w", err)
	}

	query := `
		INSERT INTO vendor_credentials (office_id, vendor, username, password_sealed, account_id, login_success)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (office_id, vendor) DO UPDATE SET
			username = EXCLUDED.username,
			password_sealed = EXCLUDED.password_sealed,
			account_id = EXCLUDED.account_id,
			login_success = true,
			updated_at = NOW()
		RETURNING id, login_success, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		cred.OfficeID, cred.Vendor, cred.Username, sealed, nullString(cred.AccountID),
	).Scan(&cred.ID, &cred.LoginSuccess, &cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

// Get returns the decrypted credential for an office and vendor, or nil, nil
// when the office has not linked the vendor. Rows sealed with a retired key
// are re-sealed with the primary key on the way out.
func (s *CredentialStore) Get(ctx context.Context, officeID string, vendor models.VendorSlug) (*models.VendorCredential, error) {
	query := `
		SELECT id, office_id, vendor, username, password_sealed, COALESCE(account_id, ''),
			   login_success, last_login_at, created_at, updated_at
		FROM vendor_credentials
		WHERE office_id = $1 AND vendor = $2
	`
	var (
		cred      models.VendorCredential
		sealed    string
		lastLogin pq.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, officeID, vendor).Scan(
		&cred.ID, &cred.OfficeID, &cred.Vendor, &cred.Username, &sealed, &cred.AccountID,
		&cred.LoginSuccess, &lastLogin, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		cred.LastLoginAt = &t
	}

	binding := credentialBinding(officeID, vendor)
	cred.Password, err = s.keyring.Open(sealed, binding)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential for %s: %w", binding, err)
	}

	if s.keyring.NeedsRotation(sealed) {
		s.rotate(ctx, cred.ID, sealed, binding)
	}
	return &cred, nil
}

func (s *CredentialStore) rotate(ctx context.Context, id, sealed, binding string) {
	resealed, err := s.keyring.Reseal(sealed, binding)
	if err == nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE vendor_credentials SET password_sealed = $2, updated_at = NOW() WHERE id = $1`,
			id, resealed)
	}
	if err != nil {
		s.logger.Warn("Failed to rotate credential key", logging.WithFields(map[string]interface{}{
			"binding": binding,
			"error":   err.Error(),
		}))
	}
}

// MarkLoginResult records the outcome of a login attempt
func (s *CredentialStore) MarkLoginResult(ctx context.Context, officeID string, vendor models.VendorSlug, success bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE vendor_credentials
		SET login_success = $3,
			last_login_at = CASE WHEN $3 THEN NOW() ELSE last_login_at END,
			updated_at = NOW()
		WHERE office_id = $1 AND vendor = $2
	`, officeID, vendor, success)
	if err != nil {
		return fmt.Errorf("failed to mark login result: %w", err)
	}
	return nil
}

// OfficesForVendor lists offices whose last login to vendor worked
func (s *CredentialStore) OfficesForVendor(ctx context.Context, vendor models.VendorSlug) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT office_id FROM vendor_credentials
		WHERE vendor = $1 AND login_success
		ORDER BY office_id
	`, vendor)
	if err != nil {
		return nil, fmt.Errorf("failed to list offices: %w", err)
	}
	defer rows.Close()

	var offices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan office: %w", err)
		}
		offices = append(offices, id)
	}
	return offices, rows.Err()
}

// ListForOffice returns the office's linked vendors without passwords
func (s *CredentialStore) ListForOffice(ctx context.Context, officeID string) ([]models.VendorCredential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, office_id, vendor, username, COALESCE(account_id, ''),
			   login_success, last_login_at, created_at, updated_at
		FROM vendor_credentials
		WHERE office_id = $1
		ORDER BY vendor
	`, officeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	var creds []models.VendorCredential
	for rows.Next() {
		var (
			cred      models.VendorCredential
			lastLogin pq.NullTime
		)
		if err := rows.Scan(
			&cred.ID, &cred.OfficeID, &cred.Vendor, &cred.Username, &cred.AccountID,
			&cred.LoginSuccess, &lastLogin, &cred.CreatedAt, &cred.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		if lastLogin.Valid {
			t := lastLogin.Time
			cred.LastLoginAt = &t
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

// Delete unlinks a vendor from an office
func (s *CredentialStore) Delete(ctx context.Context, officeID string, vendor models.VendorSlug) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM vendor_credentials WHERE office_id = $1 AND vendor = $2`, officeID, vendor)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
