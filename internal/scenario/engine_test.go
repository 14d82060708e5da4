package scenario

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	apperrors "greeks-simulator/internal/errors"
	"greeks-simulator/internal/models"
	"greeks-simulator/internal/pricing"
)

var (
	atm  = models.MarketState{Spot: 100, Rate: 0.05, Volatility: 0.2, TimeToExpiry: 1}
	call = models.OptionSpec{Strike: 100, Kind: models.Call}
)

func TestGenerate_CrossProduct(t *testing.T) {
	req := Request{
		PriceShocks: []float64{-0.05, -0.02, 0, 0.02, 0.05},
		IVShocks:    []float64{-0.10, 0, 0.10},
		DaysForward: 1,
	}
	res, err := Generate(atm, call, req)
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Scenarios) != 15 {
		t.Fatalf("expected 15 scenarios, got %d", len(res.Scenarios))
	}
	if math.Abs(res.InitialPrice-10.4506) > 1e-3 {
		t.Errorf("initial price = %v", res.InitialPrice)
	}

	// price-shock major ordering
	first, last := res.Scenarios[0], res.Scenarios[14]
	if first.PriceShockPct != -5 || first.IVShockPct != -10 {
		t.Errorf("first scenario shocks: %+v", first)
	}
	if last.PriceShockPct != 5 || last.IVShockPct != 10 {
		t.Errorf("last scenario shocks: %+v", last)
	}
	if math.Abs(res.Scenarios[3].ShockedUnderlying-98) > 1e-9 {
		t.Errorf("scenario 3 underlying = %v", res.Scenarios[3].ShockedUnderlying)
	}

	for _, p := range res.Scenarios {
		if math.Abs(p.PnL-(p.NewPrice-res.InitialPrice)) > 1e-12 {
			t.Fatalf("pnl mismatch: %+v", p)
		}
		if math.Abs(p.PnLPct-p.PnL/res.InitialPrice*100) > 1e-9 {
			t.Fatalf("pnl pct mismatch: %+v", p)
		}
	}
}

func TestGenerate_ZeroDaysForwardHasNoDecay(t *testing.T) {
	res, err := Generate(atm, call, Request{PriceShocks: []float64{0}, IVShocks: []float64{0}})
	if err != nil {
		t.Fatal(err)
	}
	if pnl := res.Scenarios[0].PnL; pnl != 0 {
		t.Errorf("unshocked scenario without a time step should not move, pnl=%v", pnl)
	}
}

func TestGenerate_UnshockedOneDayIsThetaLoss(t *testing.T) {
	res, err := Generate(atm, call, Request{PriceShocks: []float64{0}, IVShocks: []float64{0}, DaysForward: DefaultDaysForward})
	if err != nil {
		t.Fatal(err)
	}
	p := res.Scenarios[0]
	if p.PnL >= 0 {
		t.Errorf("one day of decay should lose value, pnl=%v", p.PnL)
	}
	if math.Abs(p.PnL-res.InitialGreeks.Theta) > 1e-3 {
		t.Errorf("one-day pnl %v should be close to theta %v", p.PnL, res.InitialGreeks.Theta)
	}
}

func TestGenerate_FloorsShockedVolatility(t *testing.T) {
	res, err := Generate(atm, call, Request{PriceShocks: []float64{0}, IVShocks: []float64{-1.5}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Scenarios[0].ShockedIV != pricing.MinVolatility {
		t.Errorf("shocked iv = %v, want floor %v", res.Scenarios[0].ShockedIV, pricing.MinVolatility)
	}
}

func TestGenerate_ZeroInitialPrice(t *testing.T) {
	// Far out of the money with the minimum volatility prices at exactly zero.
	m := models.MarketState{Spot: 1, Rate: 0, Volatility: 0.01, TimeToExpiry: 0.001}
	o := models.OptionSpec{Strike: 1000, Kind: models.Call}
	res, err := Generate(m, o, Request{PriceShocks: []float64{0.1}, IVShocks: []float64{0}})
	if err != nil {
		t.Fatal(err)
	}
	if res.InitialPrice != 0 {
		t.Skipf("initial price not exactly zero: %v", res.InitialPrice)
	}
	if res.Scenarios[0].PnLPct != 0 {
		t.Errorf("pnl pct must be 0 when initial price is 0, got %v", res.Scenarios[0].PnLPct)
	}
}

func TestGenerate_Errors(t *testing.T) {
	_, err := Generate(atm, call, Request{PriceShocks: []float64{-1}, IVShocks: []float64{0}})
	if !errors.Is(err, apperrors.ErrInvalidMarketState) {
		t.Errorf("-100%% shock: got %v", err)
	}
	_, err = Generate(atm, call, Request{DaysForward: -1})
	if !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("negative days: got %v", err)
	}
	_, err = Generate(atm, models.OptionSpec{Strike: 100, Kind: "x"}, Request{})
	if !errors.Is(err, apperrors.ErrInvalidOption) {
		t.Errorf("bad kind: got %v", err)
	}
}

func TestGenerate_EmptyShockLists(t *testing.T) {
	res, err := Generate(atm, call, Request{PriceShocks: []float64{0.1, 0.2}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Scenarios) != 0 {
		t.Errorf("expected no scenarios, got %d", len(res.Scenarios))
	}
}

func TestThetaDecay_Schedule(t *testing.T) {
	m := atm
	m.TimeToExpiry = 10.0 / 365
	schedule, err := ThetaDecay(m, call, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(schedule) != 31 {
		t.Fatalf("expected 31 points, got %d", len(schedule))
	}
	for i, p := range schedule {
		if p.Day != i {
			t.Errorf("point %d has day %d", i, p.Day)
		}
		if p.TimeToExpiration < pricing.MinTimeToExpiry {
			t.Errorf("day %d below floor: %v", i, p.TimeToExpiration)
		}
		if i > 0 && p.TimeToExpiration > schedule[i-1].TimeToExpiration {
			t.Errorf("time to expiration increased at day %d", i)
		}
	}
	if schedule[30].TimeToExpiration != pricing.MinTimeToExpiry {
		t.Errorf("expired days should sit at the floor, got %v", schedule[30].TimeToExpiration)
	}
	if schedule[0].Price <= schedule[9].Price {
		t.Errorf("ATM call should lose value as time passes: %v -> %v", schedule[0].Price, schedule[9].Price)
	}
}

func TestThetaDecay_Errors(t *testing.T) {
	if _, err := ThetaDecay(atm, call, -1); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("negative days: got %v", err)
	}
	bad := atm
	bad.Spot = 0
	if _, err := ThetaDecay(bad, call, 5); !errors.Is(err, apperrors.ErrInvalidMarketState) {
		t.Errorf("zero spot: got %v", err)
	}
}

// Property: scenario count is always len(price) x len(iv).
func TestProperty_ScenarioCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	parameters.MaxShrinkCount = 0

	properties := gopter.NewProperties(parameters)

	properties.Property("scenario count equals product of shock list lengths", prop.ForAll(
		func(priceShocks, ivShocks []float64, days int) bool {
			res, err := Generate(atm, call, Request{PriceShocks: priceShocks, IVShocks: ivShocks, DaysForward: days})
			if err != nil {
				return false
			}
			return len(res.Scenarios) == len(priceShocks)*len(ivShocks)
		},
		gen.SliceOf(gen.Float64Range(-0.5, 0.5)),
		gen.SliceOf(gen.Float64Range(-2, 2)),
		gen.IntRange(0, 400),
	))

	properties.Property("decay schedule has days+1 non-increasing points", prop.ForAll(
		func(T float64, days int) bool {
			m := atm
			m.TimeToExpiry = T
			schedule, err := ThetaDecay(m, call, days)
			if err != nil || len(schedule) != days+1 {
				return false
			}
			for i := 1; i < len(schedule); i++ {
				if schedule[i].TimeToExpiration > schedule[i-1].TimeToExpiration ||
					schedule[i].TimeToExpiration < pricing.MinTimeToExpiry {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 2),
		gen.IntRange(0, 120),
	))

	properties.TestingRun(t)
}
