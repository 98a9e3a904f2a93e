package analytics

import (
	"context"

	"github.com/shopspring/decimal"

	"agencyflow/policy"
)

type ProductPremium struct {
	Product      string          `json:"product"`
	Policies     int             `json:"policies"`
	TotalPremium decimal.Decimal `json:"totalPremium"`
}

type PremiumResult struct {
	Products      []ProductPremium   `json:"products"`
	TotalPolicies int                `json:"totalPolicies"`
	GrandTotal    decimal.Decimal    `json:"grandTotal"`
	ProcessType   policy.ProcessType `json:"processType"`
}

// PremiumByProduct sums annualized premium per product, largest first.
func (e *Engine) PremiumByProduct(ctx context.Context, f policy.Filter, mode policy.BobMode) (res PremiumResult, err error) {
	ctx, span := e.startSpan(ctx, "analytics.premium_by_product", f, mode)
	defer func() { endSpan(span, err) }()

	pred, err := e.scope(ctx, f, mode)
	if err != nil {
		return PremiumResult{}, err
	}
	rows, err := e.policies.PremiumByProduct(ctx, pred)
	if err != nil {
		return PremiumResult{}, storeErr("premium by product", err)
	}

	res = PremiumResult{
		Products:    make([]ProductPremium, 0, len(rows)),
		GrandTotal:  decimal.Zero,
		ProcessType: policy.ProcessTypeFor(f.RequestedBob()),
	}
	for _, r := range rows {
		res.Products = append(res.Products, ProductPremium{
			Product:      r.Product,
			Policies:     r.Policies,
			TotalPremium: r.TotalPremium.Round(2),
		})
		res.TotalPolicies += r.Policies
		res.GrandTotal = res.GrandTotal.Add(r.TotalPremium)
	}
	res.GrandTotal = res.GrandTotal.Round(2)
	return res, nil
}
