package orders

import "context"

// Repository is the order-side persistence contract consumed by the results
// feed. NextLineItem implements the result-matching ordering rule: among the
// order's lines with the given procedure code, lines with seq <= afterSeq sort
// after those with greater seq, then by ascending seq; the first row wins.
// It returns (nil, nil) when the order has no line with that code at all.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
	NextLineItem(ctx context.Context, orderID int64, code string, afterSeq int64) (*LineItem, error)
	CreateLineItem(ctx context.Context, li *LineItem) error
}
