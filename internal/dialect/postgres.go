package dialect

import "fmt"

type postgresDialect struct{}

func init() {
	Register("postgres", postgresDialect{})
}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) QuoteIdent(name string) string { return `"` + name + `"` }

func pgYearStart(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM-DD')", Value: fmt.Sprintf("%v-01-01", v)}
}
func pgYearPlusYear(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM-DD') + INTERVAL '1 YEAR'", Value: fmt.Sprintf("%v-01-01", v)}
}
func pgYearEnd(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM-DD') + INTERVAL '1 YEAR' - INTERVAL '1 SECOND'", Value: fmt.Sprintf("%v-01-01", v)}
}
func pgMonthStart(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM')", Value: fmt.Sprintf("%v", v)}
}
func pgMonthPlusMonth(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM') + INTERVAL '1 MONTH'", Value: fmt.Sprintf("%v", v)}
}
func pgMonthEnd(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM') + INTERVAL '1 MONTH' - INTERVAL '1 SECOND'", Value: fmt.Sprintf("%v", v)}
}
func pgPlusDay(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM-DD') + INTERVAL '1 DAY'", Value: v}
}
func pgDayEnd(v any) BoundValue {
	return BoundValue{Template: "TO_DATE(%s, 'YYYY-MM-DD') + INTERVAL '1 DAY' - INTERVAL '1 SECOND'", Value: v}
}
func pgHourPlusHour(v any) BoundValue {
	return BoundValue{Template: "TO_TIMESTAMP(%s, 'YYYY-MM-DD HH24:MI:SS') + INTERVAL '1 HOUR'", Value: v}
}
func pgHourEnd(v any) BoundValue {
	return BoundValue{Template: "TO_TIMESTAMP(%s, 'YYYY-MM-DD HH24:MI:SS') + INTERVAL '1 HOUR' - INTERVAL '1 SECOND'", Value: v}
}
func pgMinutePlusMinute(v any) BoundValue {
	return BoundValue{Template: "TO_TIMESTAMP(%s, 'YYYY-MM-DD HH24:MI:SS') + INTERVAL '1 MINUTE'", Value: v}
}
func pgMinuteEnd(v any) BoundValue {
	return BoundValue{Template: "TO_TIMESTAMP(%s, 'YYYY-MM-DD HH24:MI:SS') + INTERVAL '1 MINUTE' - INTERVAL '1 SECOND'", Value: v}
}

var pgTransforms = dateTransforms{
	yearStart: pgYearStart, yearPlusYear: pgYearPlusYear, yearEnd: pgYearEnd,
	monthStart: pgMonthStart, monthPlusMonth: pgMonthPlusMonth, monthEnd: pgMonthEnd,
	plusDay: pgPlusDay, dayEnd: pgDayEnd,
	hourPlusHour: pgHourPlusHour, hourEnd: pgHourEnd,
	minutePlusMin: pgMinutePlusMinute, minuteEnd: pgMinuteEnd,
}

func (postgresDialect) Convert(field string) (Conversion, bool) {
	switch field {
	case "year":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("EXTRACT(YEAR FROM %s)", col) },
			Criteria:   yearCriteria(pgTransforms),
		}, true
	case "quarter":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf(`TO_CHAR(%s, 'FMYYYY-"Q"Q')`, col) }}, true
	case "quarter_of_year":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("EXTRACT(QUARTER FROM %s)", col) }}, true
	case "month":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("TO_CHAR(%s, 'FMYYYY-MM')", col) },
			Criteria:   monthCriteria(pgTransforms),
		}, true
	case "week_of_year":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("EXTRACT(WEEK FROM %s)-1", col) }}, true
	case "date":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("TO_CHAR(%s, 'FMYYYY-MM-DD')", col) },
			Criteria:   dateCriteria(pgTransforms),
		}, true
	case "day_of_week":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("EXTRACT(ISODOW FROM %s)", col) }}, true
	case "is_weekday":
		return Conversion{Projection: func(col string) string {
			return fmt.Sprintf("CASE WHEN EXTRACT(ISODOW FROM %s) IN (1,2,3,4,5) THEN 1 ELSE 0 END", col)
		}}, true
	case "hour":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("TO_CHAR(%s, 'FMYYYY-MM-DD HH24:00:00')", col) },
			Criteria:   hourCriteria(pgTransforms),
		}, true
	case "minute":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("TO_CHAR(%s, 'FMYYYY-MM-DD HH24:MI:00')", col) },
			Criteria:   minuteCriteria(pgTransforms),
		}, true
	case "datetime":
		return Conversion{
			Projection: func(col string) string { return fmt.Sprintf("TO_CHAR(%s, 'FMYYYY-MM-DD HH24:MI:SS')", col) },
			Criteria:   datetimeCriteria(),
		}, true
	case "unixtime":
		return Conversion{Projection: func(col string) string { return fmt.Sprintf("EXTRACT(epoch FROM %s)", col) }}, true
	default:
		return Conversion{}, false
	}
}
