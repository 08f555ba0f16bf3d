package dialect

import "fmt"

type mysqlDialect struct{}

func init() {
	Register("mysql", mysqlDialect{})
}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Placeholder(n int) string { return "?" }

func (mysqlDialect) QuoteIdent(name string) string { return "`" + name + "`" }

func myYearStart(v any) BoundValue {
	return BoundValue{Template: "%s", Value: fmt.Sprintf("%v-01-01", v)}
}
func myYearPlusYear(v any) BoundValue {
	return BoundValue{Template: "DATE_ADD(%s, INTERVAL 1 YEAR)", Value: fmt.Sprintf("%v-01-01", v)}
}
func myYearEnd(v any) BoundValue {
	return BoundValue{Template: "DATE_SUB(DATE_ADD(%s, INTERVAL 1 YEAR), INTERVAL 1 SECOND)", Value: fmt.Sprintf("%v-01-01", v)}
}
func myMonthStart(v any) BoundValue {
	return BoundValue{Template: "%s", Value: fmt.Sprintf("%v-01", v)}
}
func myMonthPlusMonth(v any) BoundValue {
	return BoundValue{Template: "DATE_ADD(%s, INTERVAL 1 MONTH)", Value: fmt.Sprintf("%v-01", v)}
}
func myMonthEnd(v any) BoundValue {
	return BoundValue{Template: "DATE_SUB(DATE_ADD(%s, INTERVAL 1 MONTH), INTERVAL 1 SECOND)", Value: fmt.Sprintf("%v-01", v)}
}
func myPlusDay(v any) BoundValue {
	return BoundValue{Template: "DATE_ADD(%s, INTERVAL 1 DAY)", Value: v}
}
func myDayEnd(v any) BoundValue {
	return BoundValue{Template: "DATE_SUB(DATE_ADD(%s, INTERVAL 1 DAY), INTERVAL 1 SECOND)", Value: v}
}
func myHourPlusHour(v any) BoundValue {
	return BoundValue{Template: "DATE_ADD(%s, INTERVAL 1 HOUR)", Value: v}
}
func myHourEnd(v any) BoundValue {
	return BoundValue{Template: "DATE_SUB(DATE_ADD(%s, INTERVAL 1 HOUR), INTERVAL 1 SECOND)", Value: v}
}
func myMinutePlusMinute(v any) BoundValue {
	return BoundValue{Template: "DATE_ADD(%s, INTERVAL 1 MINUTE)", Value: v}
}
func myMinuteEnd(v any) BoundValue {
	return BoundValue{Template: "DATE_SUB(DATE_ADD(%s, INTERVAL 1 MINUTE), INTERVAL 1 SECOND)", Value: v}
}

var myTransforms = dateTransforms{
	yearStart: myYearStart, yearPlusYear: myYearPlusYear, yearEnd: myYearEnd,
	monthStart: myMonthStart, monthPlusMonth: myMonthPlusMonth, monthEnd: myMonthEnd,
	plusDay: myPlusDay, dayEnd: myDayEnd,
	hourPlusHour: myHourPlusHour, hourEnd: myHourEnd,
	minutePlusMin: myMinutePlusMinute, minuteEnd: myMinuteEnd,
}

func (mysqlDialect) Convert(field string) (Conversion, bool) {
	switch field {
	case "year":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("EXTRACT(YEAR FROM %s)", col) },
			Criteria:   yearCriteria(myTransforms),
		}, true
	case "quarter":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("CONCAT(YEAR(%s), '-Q', QUARTER(%s))", col, col)
		}}, true
	case "quarter_of_year":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("EXTRACT(QUARTER FROM %s)", col) }}, true
	case "month":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", col) },
			Criteria:   monthCriteria(myTransforms),
		}, true
	case "week_of_year":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("WEEK(%s, 1)", col) }}, true
	case "date":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col) },
			Criteria:   dateCriteria(myTransforms),
		}, true
	case "day_of_week":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("WEEKDAY(%s) + 1", col) }}, true
	case "is_weekday":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("IF((WEEKDAY(%s) + 1) < 6, 1, 0)", col) }}, true
	case "hour":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:00:00')", col) },
			Criteria:   hourCriteria(myTransforms),
		}, true
	case "minute":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:%%i:00')", col) },
			Criteria:   minuteCriteria(myTransforms),
		}, true
	case "datetime":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d %%H:%%i:%%S')", col) },
			Criteria:   datetimeCriteria(),
		}, true
	case "unixtime":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("UNIX_TIMESTAMP(%s)", col) }}, true
	default:
		return Conversion{}, false
	}
}
