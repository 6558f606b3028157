package service

import (
	"time"

	"compliance-service/internal/models"

	"github.com/shopspring/decimal"
)

// ComplianceMethodTransactionValue is the only RVC method implemented.
const ComplianceMethodTransactionValue = "transaction_value"

var oneHundred = decimal.NewFromInt(100)

// CalculateRVC derives a listing's compliance block from its full cost
// input set. Pure: same inputs yield the same block except CalculatedAt.
//
// An empty ledger disables the verdict entirely. A non-empty ledger whose
// costs sum to zero keeps tracking enabled but leaves the verdict unset:
// there is no value to attribute to any origin yet.
func CalculateRVC(inputs []models.CostInput, thresholdPercent int, now time.Time) *models.ComplianceBlock {
	if len(inputs) == 0 {
		return &models.ComplianceBlock{Enabled: false}
	}

	var can, usa, mex, other decimal.Decimal
	for _, in := range inputs {
		switch in.Country {
		case models.CountryCanada:
			can = can.Add(in.Cost)
		case models.CountryUSA:
			usa = usa.Add(in.Cost)
		case models.CountryMexico:
			mex = mex.Add(in.Cost)
		default:
			other = other.Add(in.Cost)
		}
	}

	qualifying := can.Add(usa).Add(mex)
	total := qualifying.Add(other)

	breakdown := &models.ComplianceBreakdown{
		TotalCost:      total,
		QualifyingCost: qualifying,
	}

	block := &models.ComplianceBlock{
		Enabled:   true,
		Threshold: thresholdPercent,
		Method:    ComplianceMethodTransactionValue,
		Breakdown: breakdown,
	}
	calculatedAt := now
	block.CalculatedAt = &calculatedAt

	if !total.IsPositive() {
		return block
	}

	breakdown.Canada = percentOf(can, total)
	breakdown.USA = percentOf(usa, total)
	breakdown.Mexico = percentOf(mex, total)
	breakdown.Other = percentOf(other, total)

	rvc := percentOf(qualifying, total)
	// The qualification test compares the exact ratio against the
	// threshold, not the rounded percentage: 59.5% rounds up to 60 but
	// does not qualify.
	qualifies := qualifying.Mul(oneHundred).Cmp(total.Mul(decimal.NewFromInt(int64(thresholdPercent)))) >= 0

	block.RVC = &rvc
	block.Qualifies = &qualifies
	return block
}

// percentOf returns part/total as a whole percentage, rounded half up.
// Each bucket is rounded independently, so bucket percentages may not sum
// to exactly 100.
func percentOf(part, total decimal.Decimal) int64 {
	return part.Mul(oneHundred).Div(total).Round(0).IntPart()
}
