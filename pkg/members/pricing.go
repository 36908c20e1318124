package members

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/money"
)

// PostgresPricer implements billing.MembershipPricer over the group membership tables.
// It runs on the querier handed in by the ledger so prices are read inside the batch
// transaction.
type PostgresPricer struct{}

// NewPostgresPricer creates a new PostgresPricer
func NewPostgresPricer() *PostgresPricer {
	return &PostgresPricer{}
}

var _ billing.MembershipPricer = (*PostgresPricer)(nil)

// MembershipAmounts returns the aggregated monthly price per member. Members without an
// active membership in the month are absent from the result.
func (p *PostgresPricer) MembershipAmounts(ctx context.Context, q billing.Querier, orgID uuid.UUID, memberIDs []uuid.UUID, billingMonth time.Time) (map[uuid.UUID]money.Amount, error) {
	amounts := make(map[uuid.UUID]money.Amount, len(memberIDs))
	if len(memberIDs) == 0 {
		return amounts, nil
	}

	ids := make([]string, len(memberIDs))
	for i, id := range memberIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT gm.member_id, COALESCE(gm.membership_price, g.default_membership_price)
		FROM group_memberships gm
		JOIN member_groups g ON g.id = gm.group_id
		JOIN members m ON m.id = gm.member_id
		WHERE m.organization_id = $1
		  AND gm.member_id = ANY($2::uuid[])
		  AND gm.start_date <= $3
		  AND (gm.end_date IS NULL OR gm.end_date >= $4)
	`
	monthStart := billing.FirstOfMonth(billingMonth)
	rows, err := q.QueryContext(ctx, query, orgID, pq.Array(ids), billing.LastDayOfMonth(monthStart), monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to query membership prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memberID uuid.UUID
		var price money.Amount
		if err := rows.Scan(&memberID, &price); err != nil {
			return nil, fmt.Errorf("failed to scan membership price: %w", err)
		}
		amounts[memberID] = amounts[memberID].Add(price)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate membership prices: %w", err)
	}

	for id, amount := range amounts {
		amounts[id] = amount.Round()
	}
	return amounts, nil
}
