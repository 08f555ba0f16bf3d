package combined

import (
	"math"

	"github.com/sablhq/warehouse/internal/field"
)

// ApplyRounding rewrites each metric's values in place to the number of
// decimal places its field declares, per §4.G step 8. Metrics with no
// rounding configured are left untouched.
func ApplyRounding(frame *Frame, reg *field.Registry) error {
	for _, m := range frame.Metrics {
		f, err := reg.GetField(m)
		if err != nil || f.Rounding == nil {
			continue
		}
		factor := math.Pow(10, float64(*f.Rounding))
		for _, row := range frame.Rows {
			v, ok := row.Get(m)
			if !ok {
				continue
			}
			fv, isNum := toFloat(v)
			if !isNum {
				continue
			}
			row.Set(m, math.Round(fv*factor)/factor)
		}
	}
	return nil
}
