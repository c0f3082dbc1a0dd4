// Package discount computes coupon and reward discounts over a priced cart.
// All amounts are minor currency units; every function here is pure.
package discount

import (
	"errors"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"ms-ordering/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ErrOverflow reports an amount that does not fit in int64 minor units.
var ErrOverflow = errors.New("amount out of range")

// Line is one priced cart line. UnitPrice already includes selected modifiers.
type Line struct {
	MenuItemID string
	CategoryID string
	UnitPrice  int64
	Quantity   int64
}

// Total returns UnitPrice * Quantity, saturated at math.MaxInt64.
func (l Line) Total() int64 {
	return mulSat(l.UnitPrice, l.Quantity)
}

// LineTotal returns unitPrice * quantity, or ErrOverflow when either is
// negative or the product does not fit.
func LineTotal(unitPrice, quantity int64) (int64, error) {
	if unitPrice < 0 || quantity < 0 {
		return 0, ErrOverflow
	}
	if quantity != 0 && unitPrice > math.MaxInt64/quantity {
		return 0, ErrOverflow
	}
	return unitPrice * quantity, nil
}

// Rule describes how a coupon or loyalty reward discounts an order.
type Rule struct {
	Type              models.DiscountType
	Value             decimal.Decimal
	TargetItemID      string
	TargetCategoryID  string
	BuyQuantity       int64
	GetQuantity       int64
	MaxDiscountAmount *int64
}

// RuleFromCoupon builds the discount rule of a coupon.
func RuleFromCoupon(c *models.Coupon) Rule {
	return Rule{
		Type:              c.Type,
		Value:             c.DiscountValue,
		TargetItemID:      c.TargetItemID,
		TargetCategoryID:  c.TargetCategoryID,
		BuyQuantity:       c.BuyQuantity,
		GetQuantity:       c.GetQuantity,
		MaxDiscountAmount: c.MaxDiscountAmount,
	}
}

// RuleFromReward builds the discount rule of a loyalty reward.
func RuleFromReward(r *models.LoyaltyReward) Rule {
	return Rule{
		Type:              r.DiscountType,
		Value:             r.DiscountValue,
		TargetItemID:      r.TargetItemID,
		TargetCategoryID:  r.TargetCategoryID,
		BuyQuantity:       r.BuyQuantity,
		GetQuantity:       r.GetQuantity,
		MaxDiscountAmount: r.MaxDiscountAmount,
	}
}

// Subtotal sums the line totals, saturated at math.MaxInt64.
func Subtotal(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum = addSat(sum, l.Total())
	}
	return sum
}

// CheckedSubtotal sums the line totals and fails with ErrOverflow instead of
// saturating.
func CheckedSubtotal(lines []Line) (int64, error) {
	var sum int64
	for _, l := range lines {
		total, err := LineTotal(l.UnitPrice, l.Quantity)
		if err != nil {
			return 0, err
		}
		if sum > math.MaxInt64-total {
			return 0, ErrOverflow
		}
		sum += total
	}
	return sum, nil
}

// Calculate returns the discount the rule grants on the given lines. subtotal is
// the base the discount applies to; it may be smaller than the lines' sum when
// another discount was applied first. The result is always within [0, subtotal]
// and never above MaxDiscountAmount when one is set.
func Calculate(lines []Line, subtotal int64, rule Rule) int64 {
	if subtotal <= 0 {
		return 0
	}

	var amount int64
	switch rule.Type {
	case models.DiscountPercentage:
		amount = percentOf(subtotal, rule.Value)
	case models.DiscountFixed:
		amount = rule.Value.Round(0).IntPart()
	case models.DiscountItemFree:
		amount = freeItem(lines, rule.TargetItemID)
	case models.DiscountItemDiscount:
		var base int64
		for _, l := range lines {
			if rule.TargetItemID != "" && l.MenuItemID == rule.TargetItemID {
				base = addSat(base, l.Total())
			}
		}
		amount = percentOf(base, rule.Value)
	case models.DiscountCategoryDiscount:
		var base int64
		for _, l := range lines {
			if rule.TargetCategoryID != "" && l.CategoryID == rule.TargetCategoryID {
				base = addSat(base, l.Total())
			}
		}
		amount = percentOf(base, rule.Value)
	case models.DiscountBuyXGetY:
		amount = buyXGetY(lines, rule)
	}

	return clamp(amount, subtotal, rule.MaxDiscountAmount)
}

// Tax returns round(base * rateBps / 10000), rounding half away from zero.
func Tax(base, rateBps int64) int64 {
	if base <= 0 || rateBps <= 0 {
		return 0
	}
	return decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(rateBps)).
		Div(decimal.NewFromInt(10000)).
		Round(0).
		IntPart()
}

// Totals is the money breakdown of a settled order.
type Totals struct {
	Subtotal       int64
	CouponDiscount int64
	RewardDiscount int64
	Discount       int64
	Taxable        int64
	Tax            int64
	Total          int64
}

// Summarize derives discount, tax and total. Tax applies to the discounted base.
func Summarize(subtotal, couponDiscount, rewardDiscount, rateBps int64) Totals {
	discount := couponDiscount + rewardDiscount
	if discount > subtotal {
		discount = subtotal
	}
	taxable := subtotal - discount
	tax := Tax(taxable, rateBps)
	return Totals{
		Subtotal:       subtotal,
		CouponDiscount: couponDiscount,
		RewardDiscount: rewardDiscount,
		Discount:       discount,
		Taxable:        taxable,
		Tax:            tax,
		Total:          taxable + tax,
	}
}

func percentOf(base int64, percent decimal.Decimal) int64 {
	if base <= 0 || !percent.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(base).Mul(percent).Div(hundred).Round(0).IntPart()
}

// freeItem returns the unit price of the target item, or of the cheapest line
// when there is no target.
func freeItem(lines []Line, targetItemID string) int64 {
	if targetItemID != "" {
		for _, l := range lines {
			if l.MenuItemID == targetItemID && l.Quantity > 0 {
				return l.UnitPrice
			}
		}
		return 0
	}

	var cheapest int64 = -1
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if cheapest < 0 || l.UnitPrice < cheapest {
			cheapest = l.UnitPrice
		}
	}
	if cheapest < 0 {
		return 0
	}
	return cheapest
}

// buyXGetY gives away the cheapest eligible units: for every complete group of
// buy+get eligible units, get units are free. Eligible units are those of the
// target item, else of the target category, else every unit in the cart.
// Lines are walked cheapest first, so the cost does not depend on quantities.
func buyXGetY(lines []Line, rule Rule) int64 {
	if rule.BuyQuantity <= 0 || rule.GetQuantity <= 0 {
		return 0
	}

	eligible := make([]Line, 0, len(lines))
	var units int64
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		switch {
		case rule.TargetItemID != "":
			if l.MenuItemID != rule.TargetItemID {
				continue
			}
		case rule.TargetCategoryID != "":
			if l.CategoryID != rule.TargetCategoryID {
				continue
			}
		}
		eligible = append(eligible, l)
		units = addSat(units, l.Quantity)
	}

	// groups*get never exceeds units, so it cannot overflow
	free := units / addSat(rule.BuyQuantity, rule.GetQuantity) * rule.GetQuantity
	if free == 0 {
		return 0
	}

	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].UnitPrice < eligible[j].UnitPrice })

	var amount int64
	for _, l := range eligible {
		n := min(free, l.Quantity)
		amount = addSat(amount, mulSat(l.UnitPrice, n))
		free -= n
		if free == 0 {
			break
		}
	}
	return amount
}

// mulSat multiplies non-negative amounts, saturating at math.MaxInt64.
// Negative operands give 0.
func mulSat(a, b int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

func addSat(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	return a + b
}

func clamp(amount, subtotal int64, max *int64) int64 {
	if amount < 0 {
		amount = 0
	}
	if amount > subtotal {
		amount = subtotal
	}
	if max != nil && *max >= 0 && amount > *max {
		amount = *max
	}
	return amount
}
