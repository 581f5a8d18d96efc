// Package timeparse obtiene el instante de expiración de un mercado a partir
// del campo estructurado endDate o, en su defecto, del texto de la pregunta
// ("Bitcoin Up or Down - January 27, 8:15am ET").
package timeparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/alejandrodnm/polysniper/internal/domain"
)

// DisplayZone es la zona en la que Polymarket escribe las horas de las preguntas.
const DisplayZone = "America/New_York"

var questionTimeRe = regexp.MustCompile(
	`(?i)(\w+)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)\s*ET`,
)

// Los mercados de 15 minutos escriben la ventana como rango
// ("October 19, 3:15PM-3:30PM ET"); la expiración es el final del rango.
var questionRangeRe = regexp.MustCompile(
	`(?i)(\w+)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s*\d{1,2}(?::\d{2})?\s*(?:am|pm)?\s*-\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)\s*ET`,
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// Polymarket usa varios formatos; intentamos los más comunes.
var endDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var eastern = mustLoadEastern()

func mustLoadEastern() *time.Location {
	loc, err := time.LoadLocation(DisplayZone)
	if err != nil {
		panic(fmt.Sprintf("timeparse: load %s: %v", DisplayZone, err))
	}
	return loc
}

// ParseEndDate parsea un endDate ISO-8601. Sin offset explícito se asume UTC.
func ParseEndDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("timeparse.ParseEndDate: empty: %w", domain.ErrUnparseableTime)
	}
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timeparse.ParseEndDate: %q: %w", s, domain.ErrUnparseableTime)
}

// ParseQuestion extrae "<Month> <Day>[suffix], <Hour>[:<Minute>]<am|pm> ET" del texto,
// o el final del rango si la pregunta trae "<h1>-<h2><am|pm> ET".
// La hora se interpreta en hora del Este (EST/EDT según la fecha) y el año es
// el año actual de now en esa zona. No hay rollover de año: un mercado de enero
// publicado en diciembre queda en el pasado.
func ParseQuestion(text string, now time.Time) (time.Time, error) {
	m := questionRangeRe.FindStringSubmatch(text)
	if m == nil {
		m = questionTimeRe.FindStringSubmatch(text)
	}
	if m == nil {
		return time.Time{}, fmt.Errorf("timeparse.ParseQuestion: no time in %q: %w", text, domain.ErrUnparseableTime)
	}

	month, ok := months[strings.ToLower(m[1])]
	if !ok {
		return time.Time{}, fmt.Errorf("timeparse.ParseQuestion: unknown month %q: %w", m[1], domain.ErrUnparseableTime)
	}

	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute := 0
	if m[4] != "" {
		minute, _ = strconv.Atoi(m[4])
	}
	if day < 1 || day > 31 || hour < 1 || hour > 12 || minute > 59 {
		return time.Time{}, fmt.Errorf("timeparse.ParseQuestion: out of range in %q: %w", m[0], domain.ErrUnparseableTime)
	}

	hour = to24h(hour, strings.ToLower(m[5]))
	year := now.In(eastern).Year()

	t := time.Date(year, month, day, hour, minute, 0, 0, eastern)
	// time.Date normaliza días inválidos (Feb 30 → Mar 2); lo tratamos como error.
	if t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("timeparse.ParseQuestion: invalid date in %q: %w", m[0], domain.ErrUnparseableTime)
	}
	return t.UTC(), nil
}

// to24h: 12am → 0, 12pm → 12, pm suma 12 al resto.
func to24h(hour int, ampm string) int {
	switch {
	case ampm == "am" && hour == 12:
		return 0
	case ampm == "pm" && hour != 12:
		return hour + 12
	default:
		return hour
	}
}

// Resolve devuelve la expiración de un listado: primero el endDate
// estructurado (autoritativo), luego el texto de la pregunta.
func Resolve(endDate, question string, now time.Time) (time.Time, error) {
	if t, err := ParseEndDate(endDate); err == nil {
		return t, nil
	}
	t, err := ParseQuestion(question, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeparse.Resolve: %w", err)
	}
	return t, nil
}

// FormatET formatea un instante en hora del Este para mostrar ("3:15:00 PM EDT").
func FormatET(t time.Time) string {
	return t.In(eastern).Format("3:04:05 PM MST")
}

// FifteenMinuteWindow devuelve el inicio y fin de la ventana de 15 minutos (ET)
// que contiene now.
func FifteenMinuteWindow(now time.Time) (start, end time.Time) {
	et := now.In(eastern)
	slot := (et.Minute() / 15) * 15
	start = time.Date(et.Year(), et.Month(), et.Day(), et.Hour(), slot, 0, 0, eastern)
	return start, start.Add(15 * time.Minute)
}
