package dialect

import "fmt"

// dateTransforms bundles the value->SQL-expression functions a dialect needs
// to build the criteria-rewrite tables below. Each corresponds to one
// classmethod in the reference implementation's DialectDateConversions base
// (date_year_start, date_year_plus_year, ...).
type dateTransforms struct {
	yearStart      func(v any) BoundValue
	yearPlusYear   func(v any) BoundValue
	yearEnd        func(v any) BoundValue
	monthStart     func(v any) BoundValue
	monthPlusMonth func(v any) BoundValue
	monthEnd       func(v any) BoundValue
	plusDay        func(v any) BoundValue
	dayEnd         func(v any) BoundValue
	hourPlusHour   func(v any) BoundValue
	hourEnd        func(v any) BoundValue
	minutePlusMin  func(v any) BoundValue
	minuteEnd      func(v any) BoundValue
}

func need(values []any, n int) error {
	if len(values) < n {
		return fmt.Errorf("expected %d value(s), got %d", n, len(values))
	}
	return nil
}

// yearCriteria implements §6.4/§4.E's SARGable rewrite for "year": a
// criterion against the converted year is always expanded into a range
// predicate on the underlying date/datetime column, e.g. year = 2020 becomes
// col >= 2020-01-01 AND col < 2021-01-01, matching §8's testable property.
func yearCriteria(t dateTransforms) ValueTransform {
	return func(op string, values []any) ([]RangeClause, error) {
		switch op {
		case "=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{t.yearStart(values[0])}},
				{Op: "<", Args: []BoundValue{t.yearPlusYear(values[0])}},
			}, nil
		case "!=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{t.yearStart(values[0]), t.yearEnd(values[0])}}}, nil
		case ">":
			return []RangeClause{{Op: ">=", Args: []BoundValue{t.yearPlusYear(values[0])}}}, nil
		case ">=":
			return []RangeClause{{Op: ">=", Args: []BoundValue{t.yearStart(values[0])}}}, nil
		case "<":
			return []RangeClause{{Op: "<", Args: []BoundValue{t.yearStart(values[0])}}}, nil
		case "<=":
			return []RangeClause{{Op: "<", Args: []BoundValue{t.yearPlusYear(values[0])}}}, nil
		case "between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{t.yearStart(values[0])}},
				{Op: "<", Args: []BoundValue{t.yearPlusYear(values[1])}},
			}, nil
		case "not between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{t.yearStart(values[0]), t.yearEnd(values[1])}}}, nil
		default:
			return nil, fmt.Errorf("unsupported operator %q for year criteria", op)
		}
	}
}

func monthCriteria(t dateTransforms) ValueTransform {
	return func(op string, values []any) ([]RangeClause, error) {
		switch op {
		case "=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{t.monthStart(values[0])}},
				{Op: "<", Args: []BoundValue{t.monthPlusMonth(values[0])}},
			}, nil
		case "!=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{t.monthStart(values[0]), t.monthEnd(values[0])}}}, nil
		case ">":
			return []RangeClause{{Op: ">=", Args: []BoundValue{t.monthPlusMonth(values[0])}}}, nil
		case ">=":
			return []RangeClause{{Op: ">=", Args: []BoundValue{t.monthStart(values[0])}}}, nil
		case "<":
			return []RangeClause{{Op: "<", Args: []BoundValue{t.monthStart(values[0])}}}, nil
		case "<=":
			return []RangeClause{{Op: "<", Args: []BoundValue{t.monthPlusMonth(values[0])}}}, nil
		case "between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{t.monthStart(values[0])}},
				{Op: "<", Args: []BoundValue{t.monthPlusMonth(values[1])}},
			}, nil
		case "not between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{t.monthStart(values[0]), t.monthEnd(values[1])}}}, nil
		default:
			return nil, fmt.Errorf("unsupported operator %q for month criteria", op)
		}
	}
}

func dateCriteria(t dateTransforms) ValueTransform {
	return func(op string, values []any) ([]RangeClause, error) {
		switch op {
		case "=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{rawValue(values[0])}},
				{Op: "<", Args: []BoundValue{t.plusDay(values[0])}},
			}, nil
		case "!=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{rawValue(values[0]), t.dayEnd(values[0])}}}, nil
		case ">":
			return []RangeClause{{Op: ">=", Args: []BoundValue{t.plusDay(values[0])}}}, nil
		case ">=":
			return []RangeClause{{Op: ">=", Args: []BoundValue{rawValue(values[0])}}}, nil
		case "<":
			return []RangeClause{{Op: "<", Args: []BoundValue{rawValue(values[0])}}}, nil
		case "<=":
			return []RangeClause{{Op: "<", Args: []BoundValue{t.plusDay(values[0])}}}, nil
		case "between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{rawValue(values[0])}},
				{Op: "<", Args: []BoundValue{t.plusDay(values[1])}},
			}, nil
		case "not between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{rawValue(values[0]), t.dayEnd(values[1])}}}, nil
		default:
			return nil, fmt.Errorf("unsupported operator %q for date criteria", op)
		}
	}
}

func hourCriteria(t dateTransforms) ValueTransform {
	return func(op string, values []any) ([]RangeClause, error) {
		switch op {
		case "=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{rawValue(values[0])}},
				{Op: "<", Args: []BoundValue{t.hourPlusHour(values[0])}},
			}, nil
		case "!=":
			return []RangeClause{{Op: "not between", Args: []BoundValue{rawValue(values[0]), t.hourEnd(values[0])}}}, nil
		case ">":
			return []RangeClause{{Op: ">=", Args: []BoundValue{t.hourPlusHour(values[0])}}}, nil
		case ">=":
			return []RangeClause{{Op: ">=", Args: []BoundValue{rawValue(values[0])}}}, nil
		case "<":
			return []RangeClause{{Op: "<", Args: []BoundValue{rawValue(values[0])}}}, nil
		case "<=":
			return []RangeClause{{Op: "<", Args: []BoundValue{t.hourPlusHour(values[0])}}}, nil
		case "between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{rawValue(values[0])}},
				{Op: "<", Args: []BoundValue{t.hourPlusHour(values[1])}},
			}, nil
		case "not between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{rawValue(values[0]), t.hourEnd(values[1])}}}, nil
		default:
			return nil, fmt.Errorf("unsupported operator %q for hour criteria", op)
		}
	}
}

func minuteCriteria(t dateTransforms) ValueTransform {
	return func(op string, values []any) ([]RangeClause, error) {
		switch op {
		case "=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{rawValue(values[0])}},
				{Op: "<", Args: []BoundValue{t.minutePlusMin(values[0])}},
			}, nil
		case "!=":
			return []RangeClause{{Op: "not between", Args: []BoundValue{rawValue(values[0]), t.minuteEnd(values[0])}}}, nil
		case ">":
			return []RangeClause{{Op: ">=", Args: []BoundValue{t.minutePlusMin(values[0])}}}, nil
		case ">=":
			return []RangeClause{{Op: ">=", Args: []BoundValue{rawValue(values[0])}}}, nil
		case "<":
			return []RangeClause{{Op: "<", Args: []BoundValue{rawValue(values[0])}}}, nil
		case "<=":
			return []RangeClause{{Op: "<", Args: []BoundValue{t.minutePlusMin(values[0])}}}, nil
		case "between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{
				{Op: ">=", Args: []BoundValue{rawValue(values[0])}},
				{Op: "<", Args: []BoundValue{t.minutePlusMin(values[1])}},
			}, nil
		case "not between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: "not between", Args: []BoundValue{rawValue(values[0]), t.minuteEnd(values[1])}}}, nil
		default:
			return nil, fmt.Errorf("unsupported operator %q for minute criteria", op)
		}
	}
}

// datetimeCriteria is the identity rewrite: datetime is never converted, so
// criteria pass straight through to the raw column.
func datetimeCriteria() ValueTransform {
	return func(op string, values []any) ([]RangeClause, error) {
		switch op {
		case "=", "!=", ">", ">=", "<", "<=":
			if err := need(values, 1); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: op, Args: []BoundValue{rawValue(values[0])}}}, nil
		case "between", "not between":
			if err := need(values, 2); err != nil {
				return nil, err
			}
			return []RangeClause{{Op: op, Args: []BoundValue{rawValue(values[0]), rawValue(values[1])}}}, nil
		default:
			return nil, fmt.Errorf("unsupported operator %q for datetime criteria", op)
		}
	}
}
