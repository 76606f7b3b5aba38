package core

import "time"

// AcademicYearStartMonth is the month an academic year begins.
const AcademicYearStartMonth = time.September

// AcademicYear returns the academic-year bucket containing t. A year runs
// September to August and is named after the calendar year it starts in.
func AcademicYear(t time.Time) int {
	t = t.UTC()
	if t.Month() < AcademicYearStartMonth {
		return t.Year() - 1
	}
	return t.Year()
}
