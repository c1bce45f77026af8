// Package arbiter decides whether two canonical products describe the same
// real-world product. The dedup engine only consults an arbiter after its
// attribute filters pass; an arbitration failure leaves the pair unresolved
// and is never treated as a yes.
package arbiter

import (
	"context"
)

// ProductInfo is the subset of a canonical product an arbiter sees.
type ProductInfo struct {
	ID       string
	Name     string
	Brand    string
	Category string
	Barcode  string
}

// Verdict is a definitive same-product answer.
type Verdict struct {
	Same   bool
	Reason string
}

// Arbiter answers whether two products are the same. Implementations must
// return an error rather than guess when no definitive answer is available.
type Arbiter interface {
	SameProduct(ctx context.Context, a, b ProductInfo) (Verdict, error)
}

// Func adapts a function to the Arbiter interface.
type Func func(ctx context.Context, a, b ProductInfo) (Verdict, error)

// SameProduct implements Arbiter.
func (f Func) SameProduct(ctx context.Context, a, b ProductInfo) (Verdict, error) {
	return f(ctx, a, b)
}
