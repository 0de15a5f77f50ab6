package impl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/contracts"
)

const guaranteeColumns = `id, contract_id, guarantor_id, kind, amount_cents, currency, co_signer,
	policy_number, issuer, effective_date, expiry_date, status, verified, verified_by, verified_at, created_at`

func (s *Store) insertGuaranteeTx(ctx context.Context, tx *sql.Tx, g *contracts.Guarantee) error {
	coSigner, err := nullableJSON(g.CoSigner)
	if err != nil {
		return fmt.Errorf("co_signer: %s", err)
	}
	var amount interface{}
	if g.AmountCents != nil {
		amount = *g.AmountCents
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO contract_guarantees (`+guaranteeColumns+`)
		 VALUES (`+placeholders(columnCount(guaranteeColumns))+`)`,
		g.ID.String(), g.ContractID.String(), uuidPtr(g.GuarantorID), string(g.Kind), amount, g.Currency, coSigner,
		g.PolicyNumber, g.Issuer, tsPtr(g.EffectiveDate), tsPtr(g.ExpiryDate), string(g.Status),
		g.Verified, uuidPtr(g.VerifiedBy), tsPtr(g.VerifiedAt), tsOf(g.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert into contract_guarantees: %s", err)
	}
	return nil
}

func (s *Store) updateGuaranteeTx(ctx context.Context, tx *sql.Tx, g *contracts.Guarantee) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE contract_guarantees SET
		 status = ?, verified = ?, verified_by = ?, verified_at = ?
		 WHERE id = ?`,
		string(g.Status), g.Verified, uuidPtr(g.VerifiedBy), tsPtr(g.VerifiedAt),
		g.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update contract_guarantees: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %s", err)
	}
	if affected == 0 {
		return fmt.Errorf("guarantee %s not persisted", g.ID)
	}
	return nil
}

func scanGuarantee(sc rowScanner) (*contracts.Guarantee, error) {
	var g contracts.Guarantee
	var id, contractID, kind, status string
	var guarantorID, verifiedBy, coSigner sql.NullString
	var amount sql.NullInt64
	var effectiveDate, expiryDate, verifiedAt sql.NullInt64
	var createdAt int64

	if err := sc.Scan(
		&id, &contractID, &guarantorID, &kind, &amount, &g.Currency, &coSigner,
		&g.PolicyNumber, &g.Issuer, &effectiveDate, &expiryDate, &status,
		&g.Verified, &verifiedBy, &verifiedAt, &createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if g.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if g.ContractID, err = parseUUID(contractID); err != nil {
		return nil, err
	}
	if g.GuarantorID, err = parseUUIDPtr(guarantorID); err != nil {
		return nil, err
	}
	if g.VerifiedBy, err = parseUUIDPtr(verifiedBy); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(coSigner, &g.CoSigner); err != nil {
		return nil, fmt.Errorf("co_signer: %s", err)
	}
	if amount.Valid {
		g.AmountCents = &amount.Int64
	}
	g.Kind = contracts.GuaranteeKind(kind)
	g.Status = contracts.GuaranteeStatus(status)
	g.EffectiveDate = fromTSPtr(effectiveDate)
	g.ExpiryDate = fromTSPtr(expiryDate)
	g.VerifiedAt = fromTSPtr(verifiedAt)
	g.CreatedAt = fromTS(createdAt)
	return &g, nil
}

// InsertGuarantee stores the guarantee, the contract mutation and the history
// entries in one transaction.
func (s *Store) InsertGuarantee(
	ctx context.Context, c *contracts.Contract, g *contracts.Guarantee, entries ...contracts.HistoryEntry,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
			return err
		}
		if err := s.insertGuaranteeTx(ctx, tx, g); err != nil {
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

// GetGuarantee fetches a guarantee by id.
func (s *Store) GetGuarantee(ctx context.Context, id uuid.UUID) (*contracts.Guarantee, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+guaranteeColumns+` FROM contract_guarantees WHERE id = ?1`, id.String())
	g, err := scanGuarantee(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select guarantee: %s", err)
	}
	return g, true, nil
}

// ListGuarantees lists the guarantees of a contract, oldest first.
func (s *Store) ListGuarantees(ctx context.Context, contractID uuid.UUID) ([]contracts.Guarantee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+guaranteeColumns+` FROM contract_guarantees
		 WHERE contract_id = ?1 ORDER BY created_at`, contractID.String())
	if err != nil {
		return nil, fmt.Errorf("select guarantees: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing guarantee rows")
		}
	}()

	out := make([]contracts.Guarantee, 0)
	for rows.Next() {
		g, err := scanGuarantee(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning guarantee: %s", err)
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating guarantees: %s", err)
	}
	return out, nil
}

// UpdateContractWithGuarantee persists a contract mutation and a guarantee
// mutation with their history entries in one transaction.
func (s *Store) UpdateContractWithGuarantee(
	ctx context.Context, c *contracts.Contract, g *contracts.Guarantee, entries ...contracts.HistoryEntry,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
			return err
		}
		if err := s.updateGuaranteeTx(ctx, tx, g); err != nil {
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
