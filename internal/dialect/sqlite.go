package dialect

import "fmt"

type sqliteDialect struct{}

func init() {
	Register("sqlite", sqliteDialect{})
}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Placeholder(n int) string { return "?" }

func (sqliteDialect) QuoteIdent(name string) string { return `"` + name + `"` }

func sqYearStart(v any) BoundValue {
	return BoundValue{Template: "DATE(%s)", Value: fmt.Sprintf("%v-01-01", v)}
}
func sqYearPlusYear(v any) BoundValue {
	return BoundValue{Template: "DATE(%s, '+1 year')", Value: fmt.Sprintf("%v-01-01", v)}
}
func sqYearEnd(v any) BoundValue {
	return BoundValue{Template: "DATETIME(%s, '+1 year', '-1 second')", Value: fmt.Sprintf("%v-01-01", v)}
}
func sqMonthStart(v any) BoundValue {
	return BoundValue{Template: "DATE(%s)", Value: fmt.Sprintf("%v-01", v)}
}
func sqMonthPlusMonth(v any) BoundValue {
	return BoundValue{Template: "DATE(%s, '+1 month')", Value: fmt.Sprintf("%v-01", v)}
}
func sqMonthEnd(v any) BoundValue {
	return BoundValue{Template: "DATETIME(%s, '+1 month', '-1 second')", Value: fmt.Sprintf("%v-01", v)}
}
func sqPlusDay(v any) BoundValue   { return BoundValue{Template: "DATE(%s, '+1 day')", Value: v} }
func sqDayEnd(v any) BoundValue    { return BoundValue{Template: "DATETIME(%s, '+1 day', '-1 second')", Value: v} }
func sqHourPlusHour(v any) BoundValue {
	return BoundValue{Template: "DATETIME(%s, '+1 hour')", Value: v}
}
func sqHourEnd(v any) BoundValue {
	return BoundValue{Template: "DATETIME(%s, '+1 hour', '-1 second')", Value: v}
}
func sqMinutePlusMinute(v any) BoundValue {
	return BoundValue{Template: "DATETIME(%s, '+1 minute')", Value: v}
}
func sqMinuteEnd(v any) BoundValue {
	return BoundValue{Template: "DATETIME(%s, '+1 minute', '-1 second')", Value: v}
}

var sqTransforms = dateTransforms{
	yearStart: sqYearStart, yearPlusYear: sqYearPlusYear, yearEnd: sqYearEnd,
	monthStart: sqMonthStart, monthPlusMonth: sqMonthPlusMonth, monthEnd: sqMonthEnd,
	plusDay: sqPlusDay, dayEnd: sqDayEnd,
	hourPlusHour: sqHourPlusHour, hourEnd: sqHourEnd,
	minutePlusMin: sqMinutePlusMinute, minuteEnd: sqMinuteEnd,
}

func (sqliteDialect) Convert(field string) (Conversion, bool) {
	switch field {
	case "year":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", col) },
			Criteria:   yearCriteria(sqTransforms),
		}, true
	case "quarter":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("strftime('%%Y', %s) || '-Q' || ((CAST(strftime('%%m', %s) AS INTEGER) + 2) / 3)", col, col)
		}}, true
	case "quarter_of_year":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("(CAST(strftime('%%m', %s) AS INTEGER) + 2) / 3", col)
		}}, true
	case "month":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime('%%Y-%%m', %s)", col) },
			Criteria:   monthCriteria(sqTransforms),
		}, true
	case "week_of_year":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("CAST(strftime('%%W', %s) AS INTEGER)+1", col) }}, true
	case "date":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col) },
			Criteria:   dateCriteria(sqTransforms),
		}, true
	case "day_of_week":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("(CAST(strftime('%%w', %s) AS INTEGER) + 6) %% 7 + 1", col)
		}}, true
	case "is_weekday":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("CASE CAST(strftime('%%w', %s) AS INTEGER) WHEN 0 THEN 0 WHEN 6 THEN 0 ELSE 1 END", col)
		}}, true
	case "hour":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:00:00', %s)", col) },
			Criteria:   hourCriteria(sqTransforms),
		}, true
	case "minute":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:00', %s)", col) },
			Criteria:   minuteCriteria(sqTransforms),
		}, true
	case "datetime":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime('%%Y-%%m-%%d %%H:%%M:%%S', %s)", col) },
			Criteria:   datetimeCriteria(),
		}, true
	case "unixtime":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("CAST(strftime('%%s', %s) AS INTEGER)", col) }}, true
	default:
		return Conversion{}, false
	}
}
