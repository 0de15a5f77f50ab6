package impl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

const signatureColumns = `id, contract_id, signer_id, signer_role, signature_data, auth_level,
	auth_methods, biometric_payload, device_fingerprint, user_agent, ip, signed_at`

// InsertSignature stores the signature, the contract flags it flips and the
// history entries in one transaction.
func (s *Store) InsertSignature(
	ctx context.Context, c *contracts.Contract, sig *contracts.Signature, entries ...contracts.HistoryEntry,
) error {
	signatureData, err := marshalJSON(sig.SignatureData)
	if err != nil {
		return fmt.Errorf("signature_data: %s", err)
	}
	authMethods, err := marshalJSON(sig.AuthMethods)
	if err != nil {
		return fmt.Errorf("auth_methods: %s", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contract_signatures (`+signatureColumns+`)
			 VALUES (`+placeholders(columnCount(signatureColumns))+`)`,
			sig.ID.String(), sig.ContractID.String(), sig.SignerID.String(), string(sig.SignerRole),
			signatureData, string(sig.AuthLevel), authMethods, sig.BiometricPayload,
			sig.DeviceFingerprint, sig.UserAgent, sig.IP, tsOf(sig.SignedAt),
		); err != nil {
			return fmt.Errorf("insert into contract_signatures: %s", err)
		}
		for _, entry := range entries {
			if err := s.insertHistoryTx(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListSignatures lists the signatures of a contract in signing order.
func (s *Store) ListSignatures(ctx context.Context, contractID uuid.UUID) ([]contracts.Signature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+signatureColumns+` FROM contract_signatures
		 WHERE contract_id = ?1 ORDER BY signed_at`, contractID.String())
	if err != nil {
		return nil, fmt.Errorf("select signatures: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing signature rows")
		}
	}()

	out := make([]contracts.Signature, 0)
	for rows.Next() {
		var sig contracts.Signature
		var id, contractIDCol, signerID, role, level string
		var signatureData, authMethods sql.NullString
		var signedAt int64
		if err := rows.Scan(
			&id, &contractIDCol, &signerID, &role, &signatureData, &level,
			&authMethods, &sig.BiometricPayload, &sig.DeviceFingerprint, &sig.UserAgent, &sig.IP, &signedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning signature: %s", err)
		}
		if sig.ID, err = parseUUID(id); err != nil {
			return nil, err
		}
		if sig.ContractID, err = parseUUID(contractIDCol); err != nil {
			return nil, err
		}
		if sig.SignerID, err = parseUUID(signerID); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(signatureData, &sig.SignatureData); err != nil {
			return nil, fmt.Errorf("signature_data: %s", err)
		}
		if err := unmarshalJSON(authMethods, &sig.AuthMethods); err != nil {
			return nil, fmt.Errorf("auth_methods: %s", err)
		}
		sig.SignerRole = workflow.Role(role)
		sig.AuthLevel = contracts.AuthLevel(level)
		sig.SignedAt = fromTS(signedAt)
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating signatures: %s", err)
	}
	return out, nil
}
