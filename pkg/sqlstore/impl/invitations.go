package impl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/contracts"
)

const invitationColumns = `id, contract_id, token_hash, tenant_email, tenant_phone, tenant_name,
	method, personal_message, status, attempts, error_message, created_by, accepted_by,
	created_at, sent_at, opened_at, accepted_at, last_resent_at, expires_at`

func (s *Store) insertInvitationTx(ctx context.Context, tx *sql.Tx, inv *contracts.Invitation) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO contract_invitations (`+invitationColumns+`)
		 VALUES (`+placeholders(columnCount(invitationColumns))+`)`,
		inv.ID.String(), inv.ContractID.String(), inv.TokenHash, inv.TenantEmail, inv.TenantPhone, inv.TenantName,
		string(inv.Method), inv.PersonalMessage, string(inv.Status), inv.Attempts, inv.ErrorMessage,
		inv.CreatedBy.String(), uuidPtr(inv.AcceptedBy),
		tsOf(inv.CreatedAt), tsPtr(inv.SentAt), tsPtr(inv.OpenedAt), tsPtr(inv.AcceptedAt),
		tsPtr(inv.LastResentAt), tsOf(inv.ExpiresAt),
	); err != nil {
		return fmt.Errorf("insert into contract_invitations: %s", err)
	}
	return nil
}

func (s *Store) updateInvitationTx(ctx context.Context, tx *sql.Tx, inv *contracts.Invitation) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE contract_invitations SET
		 token_hash = ?, status = ?, attempts = ?, error_message = ?, accepted_by = ?,
		 sent_at = ?, opened_at = ?, accepted_at = ?, last_resent_at = ?, expires_at = ?
		 WHERE id = ?`,
		inv.TokenHash, string(inv.Status), inv.Attempts, inv.ErrorMessage, uuidPtr(inv.AcceptedBy),
		tsPtr(inv.SentAt), tsPtr(inv.OpenedAt), tsPtr(inv.AcceptedAt), tsPtr(inv.LastResentAt), tsOf(inv.ExpiresAt),
		inv.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update contract_invitations: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %s", err)
	}
	if affected == 0 {
		return fmt.Errorf("invitation %s not persisted", inv.ID)
	}
	return nil
}

func scanInvitation(sc rowScanner) (*contracts.Invitation, error) {
	var inv contracts.Invitation
	var id, contractID, method, status, createdBy string
	var acceptedBy sql.NullString
	var createdAt, expiresAt int64
	var sentAt, openedAt, acceptedAt, lastResentAt sql.NullInt64

	if err := sc.Scan(
		&id, &contractID, &inv.TokenHash, &inv.TenantEmail, &inv.TenantPhone, &inv.TenantName,
		&method, &inv.PersonalMessage, &status, &inv.Attempts, &inv.ErrorMessage, &createdBy, &acceptedBy,
		&createdAt, &sentAt, &openedAt, &acceptedAt, &lastResentAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	var err error
	if inv.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if inv.ContractID, err = parseUUID(contractID); err != nil {
		return nil, err
	}
	if inv.CreatedBy, err = parseUUID(createdBy); err != nil {
		return nil, err
	}
	if inv.AcceptedBy, err = parseUUIDPtr(acceptedBy); err != nil {
		return nil, err
	}
	inv.Method = contracts.InvitationMethod(method)
	inv.Status = contracts.InvitationStatus(status)
	inv.CreatedAt = fromTS(createdAt)
	inv.ExpiresAt = fromTS(expiresAt)
	inv.SentAt = fromTSPtr(sentAt)
	inv.OpenedAt = fromTSPtr(openedAt)
	inv.AcceptedAt = fromTSPtr(acceptedAt)
	inv.LastResentAt = fromTSPtr(lastResentAt)
	return &inv, nil
}

// InsertInvitation stores the invitation, the contract mutation that issued it
// and the related history entries in one transaction.
func (s *Store) InsertInvitation(
	ctx context.Context, c *contracts.Contract, inv *contracts.Invitation, entries ...contracts.HistoryEntry,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
			return err
		}
		if err := s.insertInvitationTx(ctx, tx, inv); err != nil {
			return err
		}
		for _, entry := range entries {
			if err := s.insertHistoryTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetInvitation fetches an invitation by id.
func (s *Store) GetInvitation(ctx context.Context, id uuid.UUID) (*contracts.Invitation, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM contract_invitations WHERE id = ?1`, id.String())
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select invitation: %s", err)
	}
	return inv, true, nil
}

// GetInvitationByTokenHash fetches an invitation by the hash of its plaintext
// token.
func (s *Store) GetInvitationByTokenHash(ctx context.Context, hash string) (*contracts.Invitation, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM contract_invitations WHERE token_hash = ?1`, hash)
	inv, err := scanInvitation(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select invitation by token: %s", err)
	}
	return inv, true, nil
}

func (s *Store) queryInvitations(
	ctx context.Context, query string, args ...interface{},
) ([]contracts.Invitation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select invitations: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing invitation rows")
		}
	}()

	out := make([]contracts.Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning invitation: %s", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invitations: %s", err)
	}
	return out, nil
}

// ListInvitations lists every invitation of a contract, newest first.
func (s *Store) ListInvitations(ctx context.Context, contractID uuid.UUID) ([]contracts.Invitation, error) {
	return s.queryInvitations(ctx,
		`SELECT `+invitationColumns+` FROM contract_invitations
		 WHERE contract_id = ?1 ORDER BY created_at DESC`, contractID.String())
}

// ListPendingInvitationsByEmail lists live invitations addressed to the email.
func (s *Store) ListPendingInvitationsByEmail(ctx context.Context, email string) ([]contracts.Invitation, error) {
	return s.queryInvitations(ctx,
		`SELECT `+invitationColumns+` FROM contract_invitations
		 WHERE tenant_email = ?1 AND status IN ('sent', 'delivered', 'opened')
		 ORDER BY created_at DESC`, email)
}

// UpdateInvitation persists invitation-only mutations such as delivery status
// flips.
func (s *Store) UpdateInvitation(ctx context.Context, inv *contracts.Invitation) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.updateInvitationTx(ctx, tx, inv)
	})
}

// UpdateContractWithInvitation persists a contract mutation and an invitation
// mutation with their history entries in one transaction. Acceptance uses it
// to link the tenant and consume the token atomically.
func (s *Store) UpdateContractWithInvitation(
	ctx context.Context, c *contracts.Contract, inv *contracts.Invitation, entries ...contracts.HistoryEntry,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
			return err
		}
		if err := s.updateInvitationTx(ctx, tx, inv); err != nil {
			return err
		}
		for _, entry := range entries {
			if err := s.insertHistoryTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExpireInvitations flips every live invitation past its expiry to expired and
// returns how many changed.
func (s *Store) ExpireInvitations(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contract_invitations SET status = 'expired'
		 WHERE status IN ('pending', 'sent', 'delivered', 'opened') AND expires_at <= ?1`,
		tsOf(now))
	if err != nil {
		return 0, fmt.Errorf("expiring invitations: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %s", err)
	}
	return affected, nil
}
