package duty

import (
	"net/url"
	"sort"
	"time"
)

// Swap types
const (
	SwapTypeSwap = "swap"
	SwapTypeMove = "move"
)

// Change types broadcast after a duty write
const (
	ChangeUpdated    = "duties-updated"
	ChangeAutoFilled = "duties-auto-filled"
	ChangeSwapped    = "duties-swapped"
	ChangeReloaded   = "duties-reloaded"
)

const mapsSearchURL = "https://maps.google.com/?q="

type (
	// Assignments maps crossing -> weekday -> child. An absent cell is an empty slot.
	Assignments map[string]map[string]string

	Table struct {
		Duties Assignments `json:"duties"`
	}

	Children struct {
		Children []string `json:"children" validate:"dive,required,max=100"`
	}

	Crossing struct {
		Name           string `json:"name" validate:"required"`
		GoogleMapsLink string `json:"googleMapsLink,omitempty" validate:"omitempty,url"`
	}

	Crossings struct {
		Crossings []Crossing `json:"crossings" validate:"dive"`
	}

	Schedule struct {
		StartDate  string `json:"startDate,omitempty" validate:"omitempty,isodate"`
		EndDate    string `json:"endDate,omitempty" validate:"omitempty,isodate"`
		WeekNumber int    `json:"weekNumber,omitempty" validate:"omitempty,min=1,max=53"`
		Year       int    `json:"year,omitempty" validate:"omitempty,min=2000,max=2100"`
	}

	AuditEntry struct {
		ID           string    `json:"id"`
		FromChild    string    `json:"fromChild"`
		ToChild      string    `json:"toChild,omitempty"`
		FromCrossing string    `json:"fromCrossing" validate:"required"`
		FromDay      string    `json:"fromDay" validate:"required,weekday"`
		ToCrossing   string    `json:"toCrossing" validate:"required"`
		ToDay        string    `json:"toDay" validate:"required,weekday"`
		SwapType     string    `json:"swapType" validate:"required,oneof=swap move"`
		Timestamp    time.Time `json:"timestamp"`
	}

	NotificationSettings struct {
		Time    string `json:"time" validate:"required,hhmm"`
		Enabled bool   `json:"enabled"`
	}

	// Slot addresses one cell of the duty table.
	Slot struct {
		Crossing string `json:"crossing" validate:"required"`
		Day      string `json:"day" validate:"required,weekday"`
	}

	SwapRequest struct {
		From Slot `json:"from"`
		To   Slot `json:"to"`
	}

	SwapResult struct {
		SwapType string     `json:"swapType"`
		Entry    AuditEntry `json:"auditEntry"`
		Duties   Table      `json:"duties"`
	}

	AutoFillResult struct {
		Success      bool           `json:"success"`
		Distribution map[string]int `json:"distribution"`
		Duties       Table          `json:"duties"`
	}

	// TodayDuty is one crossing's assignment for a given day.
	TodayDuty struct {
		Crossing string `json:"crossing"`
		Child    string `json:"child"`
	}

	// Change describes a duty write, as broadcast to live subscribers.
	Change struct {
		Type      string      `json:"type"`
		Data      interface{} `json:"data,omitempty"`
		Timestamp time.Time   `json:"timestamp"`
	}
)

// NewTable returns an empty duty table.
func NewTable() Table {
	return Table{Duties: make(Assignments)}
}

// Get returns the child assigned to the slot, "" if empty.
func (t Table) Get(s Slot) string {
	if days, ok := t.Duties[s.Crossing]; ok {
		return days[s.Day]
	}
	return ""
}

// Set assigns child to the slot. An empty child clears it.
func (t *Table) Set(s Slot, child string) {
	if t.Duties == nil {
		t.Duties = make(Assignments)
	}
	if child == "" {
		if days, ok := t.Duties[s.Crossing]; ok {
			delete(days, s.Day)
		}
		return
	}
	days, ok := t.Duties[s.Crossing]
	if !ok {
		days = make(map[string]string)
		t.Duties[s.Crossing] = days
	}
	days[s.Day] = child
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	clone := NewTable()
	for crossing, days := range t.Duties {
		cd := make(map[string]string, len(days))
		for day, child := range days {
			cd[day] = child
		}
		clone.Duties[crossing] = cd
	}
	return clone
}

// Distribution counts how many slots each child holds.
func (t Table) Distribution() map[string]int {
	dist := make(map[string]int)
	for _, days := range t.Duties {
		for _, child := range days {
			if child != "" {
				dist[child]++
			}
		}
	}
	return dist
}

// ForDay lists the duties of a weekday, ordered by the crossings config first, then by name.
func (t Table) ForDay(day string, crossings []Crossing) []TodayDuty {
	seen := make(map[string]bool, len(t.Duties))
	var duties []TodayDuty
	for _, c := range crossings {
		seen[c.Name] = true
		if child := t.Get(Slot{Crossing: c.Name, Day: day}); child != "" {
			duties = append(duties, TodayDuty{Crossing: c.Name, Child: child})
		}
	}

	var rest []string
	for crossing := range t.Duties {
		if !seen[crossing] {
			rest = append(rest, crossing)
		}
	}
	sort.Strings(rest)
	for _, crossing := range rest {
		if child := t.Get(Slot{Crossing: crossing, Day: day}); child != "" {
			duties = append(duties, TodayDuty{Crossing: crossing, Child: child})
		}
	}
	return duties
}

// DefaultMapsLink is the map search link used when a crossing has none.
func DefaultMapsLink(name string) string {
	return mapsSearchURL + url.QueryEscape(name+" Oslo")
}
