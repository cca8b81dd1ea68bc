package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/trafikkvakt/core/duty"
)

const noDutiesText = "Ingen vakter planlagt i dag."

var (
	dayNames   = [...]string{"søndag", "mandag", "tirsdag", "onsdag", "torsdag", "fredag", "lørdag"}
	monthNames = [...]string{
		"januar", "februar", "mars", "april", "mai", "juni",
		"juli", "august", "september", "oktober", "november", "desember",
	}
)

// DayName is the capitalised Norwegian name of t's weekday.
func DayName(t time.Time) string {
	name := dayNames[t.Weekday()]
	return strings.ToUpper(name[:1]) + name[1:]
}

// DayKey is the duty table key of t's weekday ("Mandag"...), "" on weekends.
func DayKey(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return ""
	}
	return DayName(t)
}

// DateText formats t as "mandag 6. oktober".
func DateText(t time.Time) string {
	return fmt.Sprintf("%s %d. %s", dayNames[t.Weekday()], t.Day(), monthNames[t.Month()-1])
}

// DutiesText lists one "📍 crossing: child" line per duty.
func DutiesText(duties []duty.TodayDuty) string {
	if len(duties) == 0 {
		return noDutiesText
	}
	lines := make([]string, 0, len(duties))
	for _, d := range duties {
		lines = append(lines, "📍 "+d.Crossing+": "+d.Child)
	}
	return strings.Join(lines, "\n")
}

// TodayMessage is the free-text version of the daily notification.
func TodayMessage(duties []duty.TodayDuty, t time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚸 Trafikkvakter for %s %d.%d.%d\n\n", dayNames[t.Weekday()], t.Day(), int(t.Month()), t.Year())
	if len(duties) == 0 {
		b.WriteString(noDutiesText)
		return b.String()
	}
	b.WriteString(DutiesText(duties))
	b.WriteString("\n\nHusk å møte opp 5 minutter før skoletid!\nTa kontakt hvis du ikke kan møte opp.")
	return b.String()
}
