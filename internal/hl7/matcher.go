package hl7

import (
	"context"
	"fmt"

	"github.com/ehr/labfeed/internal/domain/orders"
)

// lineMatcher selects the order line item a result belongs to. When an order
// contains the same procedure code on several lines, results are assumed to
// arrive in the same relative order as the lines were placed, so each match
// advances past the last sequence number used for that code. The tracking is
// scoped to one resolved order and resets with it.
type lineMatcher struct {
	store   OrderStore
	lastSeq map[string]int64
}

func newLineMatcher(store OrderStore) *lineMatcher {
	return &lineMatcher{store: store, lastSeq: make(map[string]int64)}
}

func (m *lineMatcher) reset() {
	m.lastSeq = make(map[string]int64)
}

// match finds the line item for the given procedure code, creating an ad-hoc
// line when the order has none with that code: the procedure was added after
// the order was sent, either as a manual request or as a reflex from the lab.
func (m *lineMatcher) match(ctx context.Context, orderID int64, code, name string) (*orders.LineItem, error) {
	li, err := m.store.NextLineItem(ctx, orderID, code, m.lastSeq[code])
	if err != nil {
		return nil, err
	}
	if li == nil {
		add := &orders.LineItem{
			OrderID: orderID,
			Code:    code,
			Name:    name,
			Source:  orders.SourceReceived,
		}
		if err := m.store.CreateLineItem(ctx, add); err != nil {
			return nil, err
		}
		li, err = m.store.NextLineItem(ctx, orderID, code, 0)
		if err != nil {
			return nil, err
		}
		if li == nil {
			return nil, fmt.Errorf("order %d: line item for code %q missing after create", orderID, code)
		}
	}
	m.lastSeq[code] = li.Seq
	return li, nil
}
