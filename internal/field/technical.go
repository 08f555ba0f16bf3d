package field

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sablhq/warehouse/internal/util"
)

var technicalRE = regexp.MustCompile(`^([a-z_]+)(?:\(([^)]*)\))?(?::(group|all))?$`)

var validTechnicalTypes = map[string]bool{
	"mean": true, "sum": true, "median": true, "min": true, "max": true, "std": true, "var": true,
	"boll": true,
	"diff": true, "pct_change": true,
	"rank": true, "pct_rank": true,
	"cumsum": true, "cummin": true, "cummax": true,
}

// ParseTechnical parses the "TYPE[(arg1[, arg2])][:mode]" grammar described
// in §4.G, e.g. "mean(5,1):group", "cumsum", "boll(2):all".
func ParseTechnical(s string) (*Technical, error) {
	m := technicalRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil, util.WarehouseIntegrity(fmt.Sprintf("invalid technical spec %q", s), nil)
	}
	typ, argStr, mode := m[1], m[2], m[3]
	if !validTechnicalTypes[typ] {
		return nil, util.WarehouseIntegrity(fmt.Sprintf("unknown technical type %q", typ), nil)
	}
	if mode == "" {
		mode = "all"
	}
	var params []float64
	if argStr != "" {
		for _, part := range strings.Split(argStr, ",") {
			part = strings.TrimSpace(part)
			v, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, util.WarehouseIntegrity(fmt.Sprintf("invalid technical argument %q in %q", part, s), err)
			}
			params = append(params, v)
		}
	}
	return &Technical{Type: typ, Params: params, Mode: mode}, nil
}

// Window returns the rolling window size and min_periods for rolling/boll
// technicals, defaulting min_periods to 1 per §4.G.
func (t *Technical) Window() (window int, minPeriods int) {
	window = 1
	minPeriods = 1
	if len(t.Params) > 0 {
		window = int(t.Params[0])
	}
	if len(t.Params) > 1 {
		minPeriods = int(t.Params[1])
	}
	return window, minPeriods
}
