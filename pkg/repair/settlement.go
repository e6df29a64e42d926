package repair

import "context"

// Summary aggregates the open and closed repair queue for settlement
// reporting. Amounts are integer minor units; the average rounds half up.
type Summary struct {
	Total         int            `json:"total"`
	ByStatus      map[Status]int `json:"by_status"`
	ByType        map[Type]int   `json:"by_type"`
	TotalAmount   int64          `json:"total_amount"`
	AverageAmount int64          `json:"average_amount"`
}

// Summarize aggregates all repairs matching the filter. Pagination fields
// on the filter are ignored: a summary always covers the full match set.
func (m *Manager) Summarize(ctx context.Context, filter ListFilter) (*Summary, error) {
	filter.Limit = 0
	filter.Offset = 0
	records, _, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ByStatus: make(map[Status]int),
		ByType:   make(map[Type]int),
	}
	for _, record := range records {
		summary.Total++
		summary.ByStatus[record.RepairStatus]++
		summary.ByType[record.RepairType]++
		summary.TotalAmount += record.Amount
	}
	if summary.Total > 0 {
		n := int64(summary.Total)
		summary.AverageAmount = (summary.TotalAmount + n/2) / n
	}
	return summary, nil
}
