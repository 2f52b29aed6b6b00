// Package pricing derives every money figure of a booking from its raw inputs.
// Amounts are integer cents; decimal arithmetic is used only where the rules
// round to a fixed number of dollar decimals.
package pricing

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gigbook/backend/internal/models"
)

const (
	// MinPriceCents is the floor price of any gig ($350).
	MinPriceCents int64 = 35000
	// BookerFeePercent and DJFeePercent are snapshotted onto the booking on every save.
	BookerFeePercent int64 = 5
	DJFeePercent     int64 = 10
	// SetupHours is billed on top of the gig duration.
	SetupHours = 1
)

var (
	sixty   = decimal.NewFromInt(60)
	hundred = decimal.NewFromInt(100)
)

// ToCents converts dollars to cents, rounding to the nearest cent.
func ToCents(dollars decimal.Decimal) int64 {
	return dollars.Mul(hundred).Round(0).IntPart()
}

// ToDollars converts cents to dollars.
func ToDollars(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// PriceNotAdjusted is (duration/60 + setup hours) * hourly rate, in dollars, unrounded.
func PriceNotAdjusted(durationMinutes int, pricePerHourCents int64) decimal.Decimal {
	hours := decimal.NewFromInt(int64(durationMinutes)).Div(sixty).Add(decimal.NewFromInt(SetupHours))
	return hours.Mul(ToDollars(pricePerHourCents))
}

// AdjustmentMinutes is how many extra minutes at the hourly rate would lift the
// unadjusted price up to the minimum price. It is informational only.
func AdjustmentMinutes(durationMinutes int, pricePerHourCents int64) int {
	if pricePerHourCents <= 0 {
		return 0
	}
	notAdjusted := PriceNotAdjusted(durationMinutes, pricePerHourCents)
	minPrice := ToDollars(MinPriceCents)
	if !notAdjusted.LessThan(minPrice) {
		return 0
	}
	minutes := minPrice.Sub(notAdjusted).Div(ToDollars(pricePerHourCents)).Mul(sixty)
	return int(minutes.Ceil().IntPart())
}

// DiscountsSum totals the calculated amounts of every applied promocode.
func DiscountsSum(b *models.Booking) int64 {
	var sum int64
	for _, d := range b.AppliedDiscounts {
		sum += d.CalculatedAmountCents
	}
	return sum
}

// BasePrice is max(unadjusted price, minimum price) in cents, before discounts.
func BasePrice(b *models.Booking) int64 {
	base := ToCents(PriceNotAdjusted(b.DurationMinutes, b.PricePerHourCents))
	if base < MinPriceCents {
		base = MinPriceCents
	}
	return base
}

// Price is the amount the booker pays: base price minus discounts, never negative.
func Price(b *models.Booking) int64 {
	price := BasePrice(b) - DiscountsSum(b)
	if price < 0 {
		return 0
	}
	return price
}

// Fee applies a whole percentage to a cent amount, rounded to the cent.
func Fee(priceCents, percent int64) int64 {
	return decimal.NewFromInt(priceCents).Mul(decimal.NewFromInt(percent)).Div(hundred).Round(0).IntPart()
}

// DJEarnings is price minus both fees in dollars, rounded to ten cents. The
// subtraction runs on float64 dollars and the result is rounded on its exact
// binary value, so an exact tie goes to the even digit (531.25 gives 531.20).
func DJEarnings(b *models.Booking) int64 {
	dollars := float64(Price(b))/100 - float64(b.DJFeeCents)/100 - float64(b.BookerFeeCents)/100
	rounded := decimal.RequireFromString(strconv.FormatFloat(dollars, 'f', 1, 64))
	return rounded.Mul(hundred).IntPart()
}

// Snapshot recomputes the derived fields from the current fee percentages and
// the current price. It runs before every booking save, so fees always match
// the latest price rather than the price at creation.
func Snapshot(b *models.Booking) {
	price := Price(b)
	b.AdjustmentMinutes = AdjustmentMinutes(b.DurationMinutes, b.PricePerHourCents)
	b.BookerFeePercent = BookerFeePercent
	b.DJFeePercent = DJFeePercent
	b.BookerFeeCents = Fee(price, BookerFeePercent)
	b.DJFeeCents = Fee(price, DJFeePercent)
}

// Split decides how much of the price is covered by the booker's balance and how
// much must be charged to a card. A negative balance counts as zero.
func Split(priceCents, balanceCents int64) (fromBalance, fromCard int64) {
	if balanceCents >= priceCents {
		return priceCents, 0
	}
	if balanceCents < 0 {
		balanceCents = 0
	}
	return balanceCents, priceCents - balanceCents
}

// BusyDates lists every UTC calendar date touched by [start, start+duration].
// At least one date is returned.
func BusyDates(start time.Time, durationMinutes int) []time.Time {
	start = start.UTC()
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	day := truncateDay(start)
	last := truncateDay(end)
	dates := []time.Time{day}
	for day.Before(last) {
		day = day.AddDate(0, 0, 1)
		dates = append(dates, day)
	}
	return dates
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Overlaps reports whether two date lists share a calendar date.
func Overlaps(a, b []time.Time) bool {
	seen := make(map[string]struct{}, len(a))
	for _, d := range a {
		seen[d.Format(time.DateOnly)] = struct{}{}
	}
	for _, d := range b {
		if _, ok := seen[d.Format(time.DateOnly)]; ok {
			return true
		}
	}
	return false
}
