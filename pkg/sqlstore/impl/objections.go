package impl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viviendahub/go-viviendahub/internal/contracts"
	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

const objectionColumns = `id, contract_id, objected_by, objector_role, field_reference,
	current_value, proposed_value, justification, priority, status,
	responder_id, response_note, counter_proposal, requires_manual_amendment,
	submitted_at, reviewed_at, resolved_at`

func (s *Store) insertObjectionTx(ctx context.Context, tx *sql.Tx, o *contracts.Objection) error {
	currentValue, err := nullableJSON(o.CurrentValue)
	if err != nil {
		return fmt.Errorf("current_value: %s", err)
	}
	proposedValue, err := nullableJSON(o.ProposedValue)
	if err != nil {
		return fmt.Errorf("proposed_value: %s", err)
	}
	counterProposal, err := nullableJSON(o.CounterProposal)
	if err != nil {
		return fmt.Errorf("counter_proposal: %s", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO contract_objections (`+objectionColumns+`)
		 VALUES (`+placeholders(columnCount(objectionColumns))+`)`,
		o.ID.String(), o.ContractID.String(), o.ObjectedBy.String(), string(o.ObjectorRole), o.FieldReference,
		currentValue, proposedValue, o.Justification, string(o.Priority), string(o.Status),
		uuidPtr(o.ResponderID), o.ResponseNote, counterProposal, o.RequiresManualAmendment,
		tsOf(o.SubmittedAt), tsPtr(o.ReviewedAt), tsPtr(o.ResolvedAt),
	); err != nil {
		return fmt.Errorf("insert into contract_objections: %s", err)
	}
	return nil
}

func (s *Store) updateObjectionTx(ctx context.Context, tx *sql.Tx, o *contracts.Objection) error {
	counterProposal, err := nullableJSON(o.CounterProposal)
	if err != nil {
		return fmt.Errorf("counter_proposal: %s", err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE contract_objections SET
		 status = ?, responder_id = ?, response_note = ?, counter_proposal = ?,
		 requires_manual_amendment = ?, reviewed_at = ?, resolved_at = ?
		 WHERE id = ?`,
		string(o.Status), uuidPtr(o.ResponderID), o.ResponseNote, counterProposal,
		o.RequiresManualAmendment, tsPtr(o.ReviewedAt), tsPtr(o.ResolvedAt),
		o.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update contract_objections: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %s", err)
	}
	if affected == 0 {
		return fmt.Errorf("objection %s not persisted", o.ID)
	}
	return nil
}

func scanObjection(sc rowScanner) (*contracts.Objection, error) {
	var o contracts.Objection
	var id, contractID, objectedBy, role, priority, status string
	var responderID sql.NullString
	var currentValue, proposedValue, counterProposal sql.NullString
	var submittedAt int64
	var reviewedAt, resolvedAt sql.NullInt64

	if err := sc.Scan(
		&id, &contractID, &objectedBy, &role, &o.FieldReference,
		&currentValue, &proposedValue, &o.Justification, &priority, &status,
		&responderID, &o.ResponseNote, &counterProposal, &o.RequiresManualAmendment,
		&submittedAt, &reviewedAt, &resolvedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if o.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if o.ContractID, err = parseUUID(contractID); err != nil {
		return nil, err
	}
	if o.ObjectedBy, err = parseUUID(objectedBy); err != nil {
		return nil, err
	}
	if o.ResponderID, err = parseUUIDPtr(responderID); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(currentValue, &o.CurrentValue); err != nil {
		return nil, fmt.Errorf("current_value: %s", err)
	}
	if err := unmarshalJSON(proposedValue, &o.ProposedValue); err != nil {
		return nil, fmt.Errorf("proposed_value: %s", err)
	}
	if err := unmarshalJSON(counterProposal, &o.CounterProposal); err != nil {
		return nil, fmt.Errorf("counter_proposal: %s", err)
	}
	o.ObjectorRole = workflow.Role(role)
	o.Priority = contracts.ObjectionPriority(priority)
	o.Status = contracts.ObjectionStatus(status)
	o.SubmittedAt = fromTS(submittedAt)
	o.ReviewedAt = fromTSPtr(reviewedAt)
	o.ResolvedAt = fromTSPtr(resolvedAt)
	return &o, nil
}

// InsertObjection stores the objection, the contract counters it bumps and the
// history entries in one transaction.
func (s *Store) InsertObjection(
	ctx context.Context, c *contracts.Contract, o *contracts.Objection, entries ...contracts.HistoryEntry,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
			return err
		}
		if err := s.insertObjectionTx(ctx, tx, o); err != nil {
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

// GetObjection fetches an objection by id.
func (s *Store) GetObjection(ctx context.Context, id uuid.UUID) (*contracts.Objection, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+objectionColumns+` FROM contract_objections WHERE id = ?1`, id.String())
	o, err := scanObjection(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select objection: %s", err)
	}
	return o, true, nil
}

func (s *Store) queryObjections(ctx context.Context, query string, args ...interface{}) ([]contracts.Objection, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select objections: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing objection rows")
		}
	}()

	out := make([]contracts.Objection, 0)
	for rows.Next() {
		o, err := scanObjection(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning objection: %s", err)
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating objections: %s", err)
	}
	return out, nil
}

// ListObjections lists every objection of a contract, newest first.
func (s *Store) ListObjections(ctx context.Context, contractID uuid.UUID) ([]contracts.Objection, error) {
	return s.queryObjections(ctx,
		`SELECT `+objectionColumns+` FROM contract_objections
		 WHERE contract_id = ?1 ORDER BY submitted_at DESC`, contractID.String())
}

// ListOverdueObjections lists objections still open that were submitted at or
// before the cutoff.
func (s *Store) ListOverdueObjections(ctx context.Context, cutoff time.Time) ([]contracts.Objection, error) {
	return s.queryObjections(ctx,
		`SELECT `+objectionColumns+` FROM contract_objections
		 WHERE status IN ('pending', 'under_review') AND submitted_at <= ?1
		 ORDER BY submitted_at`, tsOf(cutoff))
}

// UpdateContractWithObjection persists a contract mutation and an objection
// mutation with their history entries in one transaction. Accepting an
// objection uses it to apply the proposed value and close the objection
// atomically.
func (s *Store) UpdateContractWithObjection(
	ctx context.Context, c *contracts.Contract, o *contracts.Objection, entries ...contracts.HistoryEntry,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
			return err
		}
		if err := s.updateObjectionTx(ctx, tx, o); err != nil {
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
