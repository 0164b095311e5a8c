package engine

import (
	"math"

	"github.com/talgya/earth-dominion/internal/atlas"
	"github.com/talgya/earth-dominion/internal/catalog"
)

// Economy constants.
const (
	MissingGDP         = 5000 // stand-in for regions without a GDP estimate
	MinControlCredits  = 50
	MinControlEnergy   = 10
	RepairShare        = 0.4
	RegionCreditIncome = 50
	RegionEnergyIncome = 10
	PlantEnergyIncome  = 50
	PlantCost          = 2000
)

// Cost is a credits/energy price.
type Cost = catalog.Cost

// Income is one turn's yield.
type Income struct {
	Credits float64 `json:"credits"`
	Energy  float64 `json:"energy"`
}

// ControlCost prices establishing control over r. The floors hold for any
// discount, including discounts of 100% or more.
func ControlCost(r atlas.Region, t Totals) Cost {
	gdp := r.GDP
	if gdp <= 0 {
		gdp = MissingGDP
	}
	base := math.Sqrt(gdp) * 0.5
	scale := 1 - t.CostDiscount
	return Cost{
		Credits: math.Floor(math.Max(MinControlCredits, base*scale)),
		Energy:  math.Floor(math.Max(MinControlEnergy, base*0.1*scale)),
	}
}

// RepairCost prices suppressing a rebellion in r.
func RepairCost(r atlas.Region, t Totals) Cost {
	c := ControlCost(r, t)
	return Cost{
		Credits: math.Floor(c.Credits * RepairShare),
		Energy:  math.Floor(c.Energy * RepairShare),
	}
}

// ProjectedIncome is what the next advance would pay. Rebellious regions
// yield nothing; nuclear plants always yield.
func ProjectedIncome(s State, t Totals) Income {
	active := float64(s.ActiveRegions())
	nuclear := float64(PlantEnergyIncome * len(s.Nuclear))
	return Income{
		Credits: math.Floor(RegionCreditIncome * active * t.IncomeCreditMult),
		Energy:  math.Floor((RegionEnergyIncome*active + nuclear) * t.IncomeEnergyMult),
	}
}
