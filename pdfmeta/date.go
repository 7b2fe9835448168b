package pdfmeta

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// dateCollapsedRe matches the issue-date label followed by a long-form
// Spanish date ("Fecha Emisión: 15 de diciembre de 2025") on the collapsed
// view, where word boundaries survive.
var dateCollapsedRe = regexp.MustCompile(
	`(?i)fecha ?(?:de ?)?emisi[oó]n ?:? ?(\d{1,2}) ?de ?([A-Za-zÁÉÍÓÚÑáéíóúñ]+?) ?de ?(\d{4})`)

// dateNoSpaceRe is the looser fallback on the no-space view: the label and
// the date parts may be separated by arbitrary glyph noise.
var dateNoSpaceRe = regexp.MustCompile(
	`(?i)emisi[oó]n.*?(\d{1,2})de([A-Za-zÁÉÍÓÚÑáéíóúñ]+?)de(\d{4})`)

// months maps Spanish month names (lowercase, spaces stripped) to their
// two-digit numbers. Unmapped names default to "01".
var months = map[string]string{
	"enero":      "01",
	"febrero":    "02",
	"marzo":      "03",
	"abril":      "04",
	"mayo":       "05",
	"junio":      "06",
	"julio":      "07",
	"agosto":     "08",
	"septiembre": "09",
	"octubre":    "10",
	"noviembre":  "11",
	"diciembre":  "12",
}

// extractIssueDate resolves the document's issue date as YYYY-MM-DD, trying
// the collapsed view first and the no-space view as fallback. Returns ""
// when neither view yields a match.
func extractIssueDate(collapsed, noSpace string) string {
	m := dateCollapsedRe.FindStringSubmatch(collapsed)
	if m == nil {
		m = dateNoSpaceRe.FindStringSubmatch(noSpace)
	}
	if m == nil {
		return ""
	}
	return assembleISODate(m[1], m[2], m[3])
}

func assembleISODate(day, monthName, year string) string {
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 {
		return ""
	}
	key := strings.ToLower(strings.ReplaceAll(monthName, " ", ""))
	month, ok := months[key]
	if !ok {
		month = "01"
	}
	return fmt.Sprintf("%s-%s-%02d", year, month, d)
}
