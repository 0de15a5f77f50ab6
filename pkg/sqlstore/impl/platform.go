package impl

import (
	"context"
	"fmt"
)

// ContractCountsByState counts every contract on the platform grouped by
// workflow state.
func (s *Store) ContractCountsByState(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM contracts GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("select state counts: %s", err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int64{}
	for rows.Next() {
		var state string
		var count int64
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("scanning state count: %s", err)
		}
		counts[state] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state counts: %s", err)
	}
	return counts, nil
}

// MatchRequestCount counts every match request ever submitted.
func (s *Store) MatchRequestCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM match_requests`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting match requests: %s", err)
	}
	return count, nil
}
