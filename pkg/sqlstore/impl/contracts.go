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

const contractColumns = `id, contract_number, contract_type, state,
	landlord_id, tenant_id, guarantor_id, property_id,
	landlord_data, tenant_data, property_data, economic_terms, contract_terms, special_clauses,
	tenant_approved, tenant_approved_at, landlord_approved, landlord_approved_at,
	tenant_signed, tenant_signed_at, guarantor_signed, guarantor_signed_at,
	landlord_signed, landlord_signed_at, fully_signed_at,
	invitation_accepted_at, tenant_identity_verified_at,
	objections_count, has_pending_objections, last_objection_date,
	published, published_at, published_by,
	start_date, end_date, pdf_handle,
	created_at, updated_at`

func contractArgs(c *contracts.Contract) ([]interface{}, error) {
	landlordData, err := marshalJSON(c.LandlordData)
	if err != nil {
		return nil, fmt.Errorf("landlord_data: %s", err)
	}
	tenantData, err := marshalJSON(c.TenantData)
	if err != nil {
		return nil, fmt.Errorf("tenant_data: %s", err)
	}
	propertyData, err := marshalJSON(c.PropertyData)
	if err != nil {
		return nil, fmt.Errorf("property_data: %s", err)
	}
	economicTerms, err := marshalJSON(c.EconomicTerms)
	if err != nil {
		return nil, fmt.Errorf("economic_terms: %s", err)
	}
	contractTerms, err := marshalJSON(c.ContractTerms)
	if err != nil {
		return nil, fmt.Errorf("contract_terms: %s", err)
	}
	specialClauses, err := marshalJSON(c.SpecialClauses)
	if err != nil {
		return nil, fmt.Errorf("special_clauses: %s", err)
	}

	return []interface{}{
		c.ID.String(), c.ContractNumber, string(c.Type), string(c.State),
		c.LandlordID.String(), uuidPtr(c.TenantID), uuidPtr(c.GuarantorID), c.PropertyID.String(),
		landlordData, tenantData, propertyData, economicTerms, contractTerms, specialClauses,
		c.TenantApproved, tsPtr(c.TenantApprovedAt), c.LandlordApproved, tsPtr(c.LandlordApprovedAt),
		c.TenantSigned, tsPtr(c.TenantSignedAt), c.GuarantorSigned, tsPtr(c.GuarantorSignedAt),
		c.LandlordSigned, tsPtr(c.LandlordSignedAt), tsPtr(c.FullySignedAt),
		tsPtr(c.InvitationAcceptedAt), tsPtr(c.TenantIdentityVerifiedAt),
		c.ObjectionsCount, c.HasPendingObjections, tsPtr(c.LastObjectionDate),
		c.Published, tsPtr(c.PublishedAt), uuidPtr(c.PublishedBy),
		tsPtr(c.StartDate), tsPtr(c.EndDate), c.PDFHandle,
		tsOf(c.CreatedAt), tsOf(c.UpdatedAt),
	}, nil
}

func scanContract(sc rowScanner) (*contracts.Contract, error) {
	var id, number, ctype, state, landlordID, propertyID, pdfHandle string
	var tenantID, guarantorID, publishedBy sql.NullString
	var landlordData, tenantData, propertyData sql.NullString
	var economicTerms, contractTerms, specialClauses sql.NullString
	var tenantApproved, landlordApproved bool
	var tenantSigned, guarantorSigned, landlordSigned bool
	var published, hasPendingObjections bool
	var objectionsCount int
	var tenantApprovedAt, landlordApprovedAt sql.NullInt64
	var tenantSignedAt, guarantorSignedAt sql.NullInt64
	var landlordSignedAt, fullySignedAt sql.NullInt64
	var invitationAcceptedAt, tenantIdentityVerifiedAt sql.NullInt64
	var lastObjectionDate, publishedAt, startDt, endDt sql.NullInt64
	var createdAt, updatedAt int64
	if err := sc.Scan(
		&id, &number, &ctype, &state,
		&landlordID, &tenantID, &guarantorID, &propertyID,
		&landlordData, &tenantData, &propertyData, &economicTerms, &contractTerms, &specialClauses,
		&tenantApproved, &tenantApprovedAt, &landlordApproved, &landlordApprovedAt,
		&tenantSigned, &tenantSignedAt, &guarantorSigned, &guarantorSignedAt,
		&landlordSigned, &landlordSignedAt, &fullySignedAt,
		&invitationAcceptedAt, &tenantIdentityVerifiedAt,
		&objectionsCount, &hasPendingObjections, &lastObjectionDate,
		&published, &publishedAt, &publishedBy,
		&startDt, &endDt, &pdfHandle,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	c := &contracts.Contract{
		ContractNumber:       number,
		Type:                 contracts.Type(ctype),
		State:                workflow.State(state),
		ObjectionsCount:      objectionsCount,
		HasPendingObjections: hasPendingObjections,
		TenantApproved:       tenantApproved,
		LandlordApproved:     landlordApproved,
		TenantSigned:         tenantSigned,
		GuarantorSigned:      guarantorSigned,
		LandlordSigned:       landlordSigned,
		Published:            published,
		PDFHandle:            pdfHandle,
		CreatedAt:            fromTS(createdAt),
		UpdatedAt:            fromTS(updatedAt),
	}

	var err error
	if c.ID, err = parseUUID(id); err != nil {
		return nil, err
	}
	if c.LandlordID, err = parseUUID(landlordID); err != nil {
		return nil, err
	}
	if c.PropertyID, err = parseUUID(propertyID); err != nil {
		return nil, err
	}
	if c.TenantID, err = parseUUIDPtr(tenantID); err != nil {
		return nil, err
	}
	if c.GuarantorID, err = parseUUIDPtr(guarantorID); err != nil {
		return nil, err
	}
	if c.PublishedBy, err = parseUUIDPtr(publishedBy); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(landlordData, &c.LandlordData); err != nil {
		return nil, fmt.Errorf("landlord_data: %s", err)
	}
	if err := unmarshalJSON(tenantData, &c.TenantData); err != nil {
		return nil, fmt.Errorf("tenant_data: %s", err)
	}
	if err := unmarshalJSON(propertyData, &c.PropertyData); err != nil {
		return nil, fmt.Errorf("property_data: %s", err)
	}
	if err := unmarshalJSON(economicTerms, &c.EconomicTerms); err != nil {
		return nil, fmt.Errorf("economic_terms: %s", err)
	}
	if err := unmarshalJSON(contractTerms, &c.ContractTerms); err != nil {
		return nil, fmt.Errorf("contract_terms: %s", err)
	}
	if err := unmarshalJSON(specialClauses, &c.SpecialClauses); err != nil {
		return nil, fmt.Errorf("special_clauses: %s", err)
	}

	c.TenantApprovedAt = fromTSPtr(tenantApprovedAt)
	c.LandlordApprovedAt = fromTSPtr(landlordApprovedAt)
	c.TenantSignedAt = fromTSPtr(tenantSignedAt)
	c.GuarantorSignedAt = fromTSPtr(guarantorSignedAt)
	c.LandlordSignedAt = fromTSPtr(landlordSignedAt)
	c.FullySignedAt = fromTSPtr(fullySignedAt)
	c.InvitationAcceptedAt = fromTSPtr(invitationAcceptedAt)
	c.TenantIdentityVerifiedAt = fromTSPtr(tenantIdentityVerifiedAt)
	c.LastObjectionDate = fromTSPtr(lastObjectionDate)
	c.PublishedAt = fromTSPtr(publishedAt)
	c.StartDate = fromTSPtr(startDt)
	c.EndDate = fromTSPtr(endDt)

	return c, nil
}

// InsertContract stores a new contract together with its first history entry.
func (s *Store) InsertContract(
	ctx context.Context, c *contracts.Contract, entry contracts.HistoryEntry,
) error {
	args, err := contractArgs(c)
	if err != nil {
		return fmt.Errorf("serializing contract: %s", err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contracts (`+contractColumns+`) VALUES (`+placeholders(columnCount(contractColumns))+`)`,
			args...); err != nil {
			return fmt.Errorf("insert into contracts: %s", err)
		}
		return s.insertHistoryTx(ctx, tx, entry)
	})
}

// GetContract fetches a contract by id.
func (s *Store) GetContract(ctx context.Context, id uuid.UUID) (*contracts.Contract, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE id = ?1`, id.String())
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select contract: %s", err)
	}
	return c, true, nil
}

// GetContractByNumber fetches a contract by its public number.
func (s *Store) GetContractByNumber(ctx context.Context, number string) (*contracts.Contract, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE contract_number = ?1`, number)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select contract by number: %s", err)
	}
	return c, true, nil
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...interface{}) ([]contracts.Contract, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select contracts: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing contract rows")
		}
	}()

	out := make([]contracts.Contract, 0)
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning contract: %s", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating contracts: %s", err)
	}
	return out, nil
}

func contractFilterSQL(f contracts.ListFilter) (string, []interface{}) {
	clause := ""
	var args []interface{}
	if f.State != "" {
		clause += ` AND state = ?`
		args = append(args, string(f.State))
	}
	if f.Type != "" {
		clause += ` AND contract_type = ?`
		args = append(args, string(f.Type))
	}
	clause += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		clause += ` LIMIT ?`
		args = append(args, f.Limit)
		if f.Offset > 0 {
			clause += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}
	return clause, args
}

// ListContracts lists contracts regardless of party.
func (s *Store) ListContracts(ctx context.Context, f contracts.ListFilter) ([]contracts.Contract, error) {
	clause, args := contractFilterSQL(f)
	return s.queryContracts(ctx, `SELECT `+contractColumns+` FROM contracts WHERE 1=1`+clause, args...)
}

// ListContractsByParty lists the contracts the user participates in.
func (s *Store) ListContractsByParty(
	ctx context.Context, userID uuid.UUID, f contracts.ListFilter,
) ([]contracts.Contract, error) {
	clause, args := contractFilterSQL(f)
	args = append([]interface{}{userID.String()}, args...)
	return s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE (landlord_id = ?1 OR tenant_id = ?1 OR guarantor_id = ?1)`+clause, args...)
}

const contractUpdateSQL = `UPDATE contracts SET
	state = ?, tenant_id = ?, guarantor_id = ?,
	landlord_data = ?, tenant_data = ?, property_data = ?,
	economic_terms = ?, contract_terms = ?, special_clauses = ?,
	tenant_approved = ?, tenant_approved_at = ?, landlord_approved = ?, landlord_approved_at = ?,
	tenant_signed = ?, tenant_signed_at = ?, guarantor_signed = ?, guarantor_signed_at = ?,
	landlord_signed = ?, landlord_signed_at = ?, fully_signed_at = ?,
	invitation_accepted_at = ?, tenant_identity_verified_at = ?,
	objections_count = ?, has_pending_objections = ?, last_objection_date = ?,
	published = ?, published_at = ?, published_by = ?,
	start_date = ?, end_date = ?, pdf_handle = ?,
	updated_at = ?
	WHERE id = ?`

func (s *Store) updateContractTx(ctx context.Context, tx *sql.Tx, c *contracts.Contract) error {
	landlordData, err := marshalJSON(c.LandlordData)
	if err != nil {
		return fmt.Errorf("landlord_data: %s", err)
	}
	tenantData, err := marshalJSON(c.TenantData)
	if err != nil {
		return fmt.Errorf("tenant_data: %s", err)
	}
	propertyData, err := marshalJSON(c.PropertyData)
	if err != nil {
		return fmt.Errorf("property_data: %s", err)
	}
	economicTerms, err := marshalJSON(c.EconomicTerms)
	if err != nil {
		return fmt.Errorf("economic_terms: %s", err)
	}
	contractTerms, err := marshalJSON(c.ContractTerms)
	if err != nil {
		return fmt.Errorf("contract_terms: %s", err)
	}
	specialClauses, err := marshalJSON(c.SpecialClauses)
	if err != nil {
		return fmt.Errorf("special_clauses: %s", err)
	}

	res, err := tx.ExecContext(ctx, contractUpdateSQL,
		string(c.State), uuidPtr(c.TenantID), uuidPtr(c.GuarantorID),
		landlordData, tenantData, propertyData,
		economicTerms, contractTerms, specialClauses,
		c.TenantApproved, tsPtr(c.TenantApprovedAt), c.LandlordApproved, tsPtr(c.LandlordApprovedAt),
		c.TenantSigned, tsPtr(c.TenantSignedAt), c.GuarantorSigned, tsPtr(c.GuarantorSignedAt),
		c.LandlordSigned, tsPtr(c.LandlordSignedAt), tsPtr(c.FullySignedAt),
		tsPtr(c.InvitationAcceptedAt), tsPtr(c.TenantIdentityVerifiedAt),
		c.ObjectionsCount, c.HasPendingObjections, tsPtr(c.LastObjectionDate),
		c.Published, tsPtr(c.PublishedAt), uuidPtr(c.PublishedBy),
		tsPtr(c.StartDate), tsPtr(c.EndDate), c.PDFHandle,
		tsOf(c.UpdatedAt),
		c.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update contracts: %s", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %s", err)
	}
	if affected == 0 {
		return fmt.Errorf("contract %s not persisted", c.ID)
	}
	return nil
}

// UpdateContract persists the contract mutation and appends the history
// entries in one transaction.
func (s *Store) UpdateContract(
	ctx context.Context, c *contracts.Contract, entries ...contracts.HistoryEntry,
) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.updateContractTx(ctx, tx, c); err != nil {
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

// NextContractNumber bumps and returns the per-year sequence.
func (s *Store) NextContractNumber(ctx context.Context, year int) (int64, error) {
	var next int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO contract_sequences (year, last_value) VALUES (?1, 1)
			 ON CONFLICT (year) DO UPDATE SET last_value = last_value + 1`, year); err != nil {
			return fmt.Errorf("bumping sequence: %s", err)
		}
		if err := tx.QueryRowContext(ctx,
			`SELECT last_value FROM contract_sequences WHERE year = ?1`, year).Scan(&next); err != nil {
			return fmt.Errorf("reading sequence: %s", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

const historyColumns = `id, contract_id, action_type, description, performed_by, user_role,
	old_state, new_state, changes_made, metadata, "timestamp", integrity_hash`

func (s *Store) insertHistoryTx(ctx context.Context, tx *sql.Tx, e contracts.HistoryEntry) error {
	changes, err := nullableJSON(e.ChangesMade)
	if err != nil {
		return fmt.Errorf("changes_made: %s", err)
	}
	meta, err := marshalJSON(e.Metadata)
	if err != nil {
		return fmt.Errorf("metadata: %s", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO contract_history (`+historyColumns+`) VALUES (`+placeholders(columnCount(historyColumns))+`)`,
		e.ID.String(), e.ContractID.String(), string(e.ActionType), e.Description, e.PerformedBy, string(e.UserRole),
		string(e.OldState), string(e.NewState), changes, meta, tsOf(e.Timestamp), e.IntegrityHash,
	); err != nil {
		return fmt.Errorf("insert into contract_history: %s", err)
	}
	return nil
}

// GetHistory returns the full trace of a contract in chronological order.
func (s *Store) GetHistory(ctx context.Context, contractID uuid.UUID) ([]contracts.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM contract_history WHERE contract_id = ?1 ORDER BY "timestamp", id`,
		contractID.String())
	if err != nil {
		return nil, fmt.Errorf("select contract_history: %s", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("closing history rows")
		}
	}()

	out := make([]contracts.HistoryEntry, 0)
	for rows.Next() {
		var e contracts.HistoryEntry
		var id, contractIDCol, action, role, oldState, newState string
		var changes, meta sql.NullString
		var ts int64
		if err := rows.Scan(
			&id, &contractIDCol, &action, &e.Description, &e.PerformedBy, &role,
			&oldState, &newState, &changes, &meta, &ts, &e.IntegrityHash,
		); err != nil {
			return nil, fmt.Errorf("scanning history entry: %s", err)
		}
		if e.ID, err = parseUUID(id); err != nil {
			return nil, err
		}
		if e.ContractID, err = parseUUID(contractIDCol); err != nil {
			return nil, err
		}
		e.ActionType = contracts.ActionType(action)
		e.UserRole = workflow.Role(role)
		e.OldState = workflow.State(oldState)
		e.NewState = workflow.State(newState)
		if err := unmarshalJSON(changes, &e.ChangesMade); err != nil {
			return nil, fmt.Errorf("changes_made: %s", err)
		}
		if err := unmarshalJSON(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("metadata: %s", err)
		}
		e.Timestamp = fromTS(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %s", err)
	}
	return out, nil
}

// ListContractsDueForActivation lists published contracts whose start date
// passed.
func (s *Store) ListContractsDueForActivation(ctx context.Context, now time.Time) ([]contracts.Contract, error) {
	return s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE state = ?1 AND start_date IS NOT NULL AND start_date <= ?2`,
		string(workflow.StatePublished), tsOf(now))
}

// ListContractsDueForExpiry lists active contracts whose end date passed.
func (s *Store) ListContractsDueForExpiry(ctx context.Context, now time.Time) ([]contracts.Contract, error) {
	return s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts
		 WHERE state = ?1 AND end_date IS NOT NULL AND end_date <= ?2`,
		string(workflow.StateActive), tsOf(now))
}

// ContractStats aggregates the party's contracts. Objections still open at
// overdueBefore count as overdue.
func (s *Store) ContractStats(
	ctx context.Context, partyID uuid.UUID, overdueBefore time.Time,
) (*contracts.Stats, error) {
	list, err := s.ListContractsByParty(ctx, partyID, contracts.ListFilter{})
	if err != nil {
		return nil, err
	}

	stats := &contracts.Stats{ByState: map[workflow.State]int{}}
	totalCompletion := 0
	for i := range list {
		c := &list[i]
		stats.Total++
		stats.ByState[c.State]++
		if c.Published {
			stats.Published++
		}
		totalCompletion += c.CompletionPercentage()
	}
	if stats.Total > 0 {
		stats.AverageCompletion = totalCompletion / stats.Total
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contract_objections o
		 JOIN contracts c ON c.id = o.contract_id
		 WHERE (c.landlord_id = ?1 OR c.tenant_id = ?1 OR c.guarantor_id = ?1)
		   AND o.status IN ('pending', 'under_review')`,
		partyID.String()).Scan(&stats.PendingObjections); err != nil {
		return nil, fmt.Errorf("counting pending objections: %s", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contract_objections o
		 JOIN contracts c ON c.id = o.contract_id
		 WHERE (c.landlord_id = ?1 OR c.tenant_id = ?1 OR c.guarantor_id = ?1)
		   AND o.status IN ('pending', 'under_review') AND o.submitted_at <= ?2`,
		partyID.String(), tsOf(overdueBefore)).Scan(&stats.OverdueObjections); err != nil {
		return nil, fmt.Errorf("counting overdue objections: %s", err)
	}
	return stats, nil
}
