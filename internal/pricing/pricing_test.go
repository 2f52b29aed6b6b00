package pricing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gigbook/backend/internal/models"
)

func discount(calculatedCents int64) models.AppliedDiscount {
	return models.AppliedDiscount{
		PromocodeID:           uuid.New(),
		PromocodeType:         models.PromocodeFixed,
		Amount:                ToDollars(calculatedCents),
		CalculatedAmountCents: calculatedCents,
	}
}

func TestPrice_MinimumApplies(t *testing.T) {
	b := &models.Booking{DurationMinutes: 180, PricePerHourCents: 1000}

	if got := PriceNotAdjusted(180, 1000); !got.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("price not adjusted: got %s, want 40", got)
	}
	Snapshot(b)
	if got := Price(b); got != 35000 {
		t.Errorf("price: got %d, want 35000", got)
	}
	if b.BookerFeeCents != 1750 {
		t.Errorf("booker fee: got %d, want 1750", b.BookerFeeCents)
	}
	if b.DJFeeCents != 3500 {
		t.Errorf("dj fee: got %d, want 3500", b.DJFeeCents)
	}
	if b.AdjustmentMinutes != 1860 {
		t.Errorf("adjustment minutes: got %d, want 1860", b.AdjustmentMinutes)
	}
	if b.BookerFeePercent != BookerFeePercent || b.DJFeePercent != DJFeePercent {
		t.Errorf("fee percents not snapshotted: %d/%d", b.BookerFeePercent, b.DJFeePercent)
	}
}

func TestPrice_AboveMinimum(t *testing.T) {
	// 90 minutes + setup hour at $250/h = $625.
	b := &models.Booking{DurationMinutes: 90, PricePerHourCents: 25000}
	Snapshot(b)

	if got := Price(b); got != 62500 {
		t.Errorf("price: got %d, want 62500", got)
	}
	if b.AdjustmentMinutes != 0 {
		t.Errorf("adjustment minutes: got %d, want 0", b.AdjustmentMinutes)
	}
	if b.BookerFeeCents != 3125 {
		t.Errorf("booker fee: got %d, want 3125", b.BookerFeeCents)
	}
	// 531.25 is an exact tie and rounds to the even digit
	if got := DJEarnings(b); got != 53120 {
		t.Errorf("dj earnings: got %d, want 53120", got)
	}
}

func TestDJEarnings_Rounding(t *testing.T) {
	tests := []struct {
		name          string
		djFee, bkrFee int64
		want          int64
	}{
		{"tie rounds up to even", 3500, 1725, 29780},
		{"tie rounds down to even", 3500, 2275, 29220},
		{"below tie", 3500, 1760, 29740},
		{"no rounding needed", 3500, 1750, 29750},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// $10/h for three hours is lifted to the $350 floor.
			b := &models.Booking{DurationMinutes: 180, PricePerHourCents: 1000,
				DJFeeCents: tt.djFee, BookerFeeCents: tt.bkrFee}
			if got := DJEarnings(b); got != tt.want {
				t.Errorf("DJEarnings = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrice_Discounts(t *testing.T) {
	b := &models.Booking{DurationMinutes: 180, PricePerHourCents: 1000}

	b.AppliedDiscounts = append(b.AppliedDiscounts, discount(1000))
	Snapshot(b)
	if got := Price(b); got != 34000 {
		t.Fatalf("price after $10: got %d, want 34000", got)
	}
	if b.BookerFeeCents != 1700 || b.DJFeeCents != 3400 {
		t.Errorf("fees after $10: got %d/%d, want 1700/3400", b.BookerFeeCents, b.DJFeeCents)
	}

	b.AppliedDiscounts = append(b.AppliedDiscounts, discount(6800))
	Snapshot(b)
	if got := Price(b); got != 27200 {
		t.Errorf("price after 20%%: got %d, want 27200", got)
	}
	if got := DiscountsSum(b); got != 7800 {
		t.Errorf("discount sum: got %d, want 7800", got)
	}
	if Price(b) != BasePrice(b)-DiscountsSum(b) {
		t.Error("price must equal base minus discounts")
	}
}

func TestPrice_ClampedAtZero(t *testing.T) {
	b := &models.Booking{DurationMinutes: 180, PricePerHourCents: 1000}
	b.AppliedDiscounts = []models.AppliedDiscount{discount(40000)}
	Snapshot(b)

	if got := Price(b); got != 0 {
		t.Errorf("price: got %d, want 0", got)
	}
	if b.BookerFeeCents != 0 || b.DJFeeCents != 0 {
		t.Errorf("fees: got %d/%d, want 0/0", b.BookerFeeCents, b.DJFeeCents)
	}
}

func TestSplit(t *testing.T) {
	cases := []struct {
		name                  string
		price, balance        int64
		wantBalance, wantCard int64
	}{
		{"balance covers", 35000, 50000, 35000, 0},
		{"partial balance", 35000, 10000, 10000, 25000},
		{"empty balance", 35000, 0, 0, 35000},
		{"negative balance", 35000, -500, 0, 35000},
		{"free booking", 0, 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fromBalance, fromCard := Split(tc.price, tc.balance)
			if fromBalance != tc.wantBalance || fromCard != tc.wantCard {
				t.Errorf("got %d/%d, want %d/%d", fromBalance, fromCard, tc.wantBalance, tc.wantCard)
			}
			if fromBalance+fromCard != tc.price {
				t.Errorf("split %d+%d does not add up to %d", fromBalance, fromCard, tc.price)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	if got := ToCents(decimal.RequireFromString("17.505")); got != 1751 {
		t.Errorf("ToCents: got %d, want 1751", got)
	}
	if got := ToDollars(1750); !got.Equal(decimal.RequireFromString("17.5")) {
		t.Errorf("ToDollars: got %s, want 17.5", got)
	}
}

func TestBusyDates(t *testing.T) {
	start := time.Date(2026, 5, 1, 22, 0, 0, 0, time.UTC)

	single := BusyDates(time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC), 120)
	if len(single) != 1 || single[0].Day() != 1 {
		t.Fatalf("single day: got %v", single)
	}

	overnight := BusyDates(start, 240)
	if len(overnight) != 2 || overnight[0].Day() != 1 || overnight[1].Day() != 2 {
		t.Fatalf("overnight: got %v", overnight)
	}

	if !Overlaps(overnight, BusyDates(time.Date(2026, 5, 2, 20, 0, 0, 0, time.UTC), 60)) {
		t.Error("expected overlap on May 2")
	}
	if Overlaps(single, BusyDates(time.Date(2026, 5, 3, 20, 0, 0, 0, time.UTC), 60)) {
		t.Error("unexpected overlap")
	}
}

func TestBusyDates_NormalizesToUTC(t *testing.T) {
	// 00:30 on July 11 at UTC+2 is 22:30 on July 10 in UTC.
	local := time.Date(2026, 7, 11, 0, 30, 0, 0, time.FixedZone("UTC+2", 2*60*60))
	got := BusyDates(local, 60)
	if len(got) != 1 || got[0].Format(time.DateOnly) != "2026-07-10" || got[0].Location() != time.UTC {
		t.Fatalf("dates = %v, want [2026-07-10 UTC]", got)
	}
	stored := BusyDates(time.Date(2026, 7, 10, 23, 30, 0, 0, time.UTC), 20)
	if !Overlaps(got, stored) {
		t.Error("same UTC day not reported as overlapping")
	}
}
