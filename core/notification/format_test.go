package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/trafikkvakt/core/duty"
)

func TestDayKey(t *testing.T) {
	monday := time.Date(2025, time.October, 6, 12, 0, 0, 0, time.UTC)
	want := []string{"Mandag", "Tirsdag", "Onsdag", "Torsdag", "Fredag", "", ""}
	for i, key := range want {
		day := monday.AddDate(0, 0, i)
		assert.Equal(t, key, DayKey(day), day.Weekday().String())
	}
	assert.Equal(t, "Lørdag", DayName(monday.AddDate(0, 0, 5)))
	assert.Equal(t, "Søndag", DayName(monday.AddDate(0, 0, 6)))
}

func TestDateText(t *testing.T) {
	tests := []struct {
		date time.Time
		want string
	}{
		{date: time.Date(2025, time.October, 6, 0, 0, 0, 0, time.UTC), want: "mandag 6. oktober"},
		{date: time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC), want: "fredag 31. januar"},
		{date: time.Date(2025, time.May, 17, 0, 0, 0, 0, time.UTC), want: "lørdag 17. mai"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DateText(tt.date))
		})
	}
}

func TestTodayMessage(t *testing.T) {
	monday := time.Date(2025, time.October, 6, 7, 0, 0, 0, time.UTC)

	t.Run("no duties", func(t *testing.T) {
		assert.Equal(t, "Ingen vakter planlagt i dag.", DutiesText(nil))
		assert.Equal(t, "🚸 Trafikkvakter for mandag 6.10.2025\n\nIngen vakter planlagt i dag.", TodayMessage(nil, monday))
	})

	t.Run("duties", func(t *testing.T) {
		duties := []duty.TodayDuty{{Crossing: "Elm St", Child: "Ada"}, {Crossing: "Oak Ave", Child: "Bob"}}
		assert.Equal(t, "📍 Elm St: Ada\n📍 Oak Ave: Bob", DutiesText(duties))
		want := "🚸 Trafikkvakter for mandag 6.10.2025\n\n" +
			"📍 Elm St: Ada\n📍 Oak Ave: Bob\n\n" +
			"Husk å møte opp 5 minutter før skoletid!\nTa kontakt hvis du ikke kan møte opp."
		assert.Equal(t, want, TodayMessage(duties, monday))
	})
}
