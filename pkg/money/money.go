package money

import (
	"fmt"
	"math"
)

// Amount is a fixed-point currency value carried in hundredths of a unit.
// All ledger arithmetic happens on Amount; conversion to whole units only
// occurs at the Rater boundary and in presentation code.
type Amount int64

const centsPerUnit = 100

// GatewayMinimum is the smallest amount the online payment gateway accepts.
const GatewayMinimum = Amount(1000 * centsPerUnit)

func FromUnits(units int64) Amount {
	return Amount(units * centsPerUnit)
}

// FromFloat converts a float currency value (e.g. a Rater cost) rounding
// to the nearest hundredth.
func FromFloat(v float64) Amount {
	return Amount(math.Round(v * centsPerUnit))
}

// FloorUnits returns the value in whole currency units, floored. Values
// written to the Rater are always floored.
func (a Amount) FloorUnits() int64 {
	if a < 0 {
		return -int64((-a + centsPerUnit - 1) / centsPerUnit)
	}
	return int64(a / centsPerUnit)
}

// CeilUnits rounds up to the next whole currency unit.
func (a Amount) CeilUnits() Amount {
	if a%centsPerUnit == 0 {
		return a
	}
	if a < 0 {
		return a - a%centsPerUnit
	}
	return a + centsPerUnit - a%centsPerUnit
}

func (a Amount) Float() float64 {
	return float64(a) / centsPerUnit
}

// PercentCeil computes a*p/100 rounding the result up to a whole cent.
func (a Amount) PercentCeil(percent int64) Amount {
	if percent == 0 || a == 0 {
		return 0
	}
	v := int64(a) * percent
	if v%100 != 0 {
		if v > 0 {
			v += 100 - v%100
		} else {
			v -= v % 100
		}
	}
	return Amount(v / 100)
}

// ClampGatewayMin raises a positive amount to the gateway minimum.
func (a Amount) ClampGatewayMin() Amount {
	if a > 0 && a < GatewayMinimum {
		return GatewayMinimum
	}
	return a
}

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/centsPerUnit, v%centsPerUnit)
}
