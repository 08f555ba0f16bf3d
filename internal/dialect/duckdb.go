package dialect

import "fmt"

type duckdbDialect struct{}

func init() {
	Register("duckdb", duckdbDialect{})
}

func (duckdbDialect) Name() string { return "duckdb" }

func (duckdbDialect) Placeholder(n int) string { return "?" }

func (duckdbDialect) QuoteIdent(name string) string { return `"` + name + `"` }

func ddYearStart(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS DATE)", Value: fmt.Sprintf("%v-01-01", v)}
}
func ddYearPlusYear(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS DATE) + to_years(1)", Value: fmt.Sprintf("%v-01-01", v)}
}
func ddYearEnd(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS TIMESTAMP) + to_years(1) - to_seconds(1)", Value: fmt.Sprintf("%v-01-01", v)}
}
func ddMonthStart(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS DATE)", Value: fmt.Sprintf("%v-01", v)}
}
func ddMonthPlusMonth(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS DATE) + to_months(1)", Value: fmt.Sprintf("%v-01", v)}
}
func ddMonthEnd(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS TIMESTAMP) + to_months(1) - to_seconds(1)", Value: fmt.Sprintf("%v-01", v)}
}
func ddPlusDay(v any) BoundValue { return BoundValue{Template: "CAST(%s AS DATE) + to_days(1)", Value: v} }
func ddDayEnd(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS TIMESTAMP) + to_days(1) - to_seconds(1)", Value: v}
}
func ddHourPlusHour(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS TIMESTAMP) + to_hours(1)", Value: v}
}
func ddHourEnd(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS TIMESTAMP) + to_hours(1) - to_seconds(1)", Value: v}
}
func ddMinutePlusMinute(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS TIMESTAMP) + to_minutes(1)", Value: v}
}
func ddMinuteEnd(v any) BoundValue {
	return BoundValue{Template: "CAST(%s AS TIMESTAMP) + to_minutes(1) - to_seconds(1)", Value: v}
}

var ddTransforms = dateTransforms{
	yearStart: ddYearStart, yearPlusYear: ddYearPlusYear, yearEnd: ddYearEnd,
	monthStart: ddMonthStart, monthPlusMonth: ddMonthPlusMonth, monthEnd: ddMonthEnd,
	plusDay: ddPlusDay, dayEnd: ddDayEnd,
	hourPlusHour: ddHourPlusHour, hourEnd: ddHourEnd,
	minutePlusMin: ddMinutePlusMinute, minuteEnd: ddMinuteEnd,
}

// Convert mirrors the reference implementation's DuckDBDialectDateConversions,
// which layers to_years/to_months/to_days interval arithmetic and strftime
// projections on top of the common date conversion table.
func (duckdbDialect) Convert(field string) (Conversion, bool) {
	switch field {
	case "year":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("CAST(strftime(%s, '%%Y') AS INTEGER)", col) },
			Criteria:   yearCriteria(ddTransforms),
		}, true
	case "quarter":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("strftime(%s, '%%Y') || '-Q' || ((CAST(strftime(%s, '%%m') AS INTEGER) + 2) / 3)", col, col)
		}}, true
	case "quarter_of_year":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("(CAST(strftime(%s, '%%m') AS INTEGER) + 2) / 3", col)
		}}, true
	case "month":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime(%s, '%%Y-%%m')", col) },
			Criteria:   monthCriteria(ddTransforms),
		}, true
	case "week_of_year":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("CAST(strftime(%s, '%%W') AS INTEGER)+1", col) }}, true
	case "date":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime(%s, '%%Y-%%m-%%d')", col) },
			Criteria:   dateCriteria(ddTransforms),
		}, true
	case "day_of_week":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("(CAST(strftime(%s, '%%w') AS INTEGER) + 6) %% 7 + 1", col)
		}}, true
	case "is_weekday":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("CASE CAST(strftime(%s, '%%w') AS INTEGER) WHEN 0 THEN 0 WHEN 6 THEN 0 ELSE 1 END", col)
		}}, true
	case "hour":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime(%s, '%%Y-%%m-%%d %%H:00:00')", col) },
			Criteria:   hourCriteria(ddTransforms),
		}, true
	case "minute":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime(%s, '%%Y-%%m-%%d %%H:%%M:00')", col) },
			Criteria:   minuteCriteria(ddTransforms),
		}, true
	case "datetime":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("strftime(%s, '%%Y-%%m-%%d %%H:%%M:%%S')", col) },
			Criteria:   datetimeCriteria(),
		}, true
	case "unixtime":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("epoch(%s)", col) }}, true
	default:
		return Conversion{}, false
	}
}
