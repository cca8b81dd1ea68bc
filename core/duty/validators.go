package duty

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/trafikkvakt/core"
)

const similarNameRatio = .75

var (
	errEmptyCrossingName = "crossing name cannot be empty"
	errUnknownDay        = "unknown day %q, expected one of " + strings.Join(core.Weekdays, ", ")
	errDuplicateName     = "%q is listed more than once"
)

// Validate checks that every row names a crossing and every cell a weekday. Names are trimmed in place.
func (t *Table) Validate() error {
	clean := NewTable()
	for crossing, days := range t.Duties {
		name := core.CleanString(crossing)
		if name == "" {
			return core.NewFieldError("duties", errEmptyCrossingName)
		}
		for day, child := range days {
			if !core.IsWeekday(day) {
				return core.NewFieldError("duties", fmt.Sprintf(errUnknownDay, day))
			}
			clean.Set(Slot{Crossing: name, Day: day}, core.CleanString(child))
		}
		if _, ok := clean.Duties[name]; !ok {
			clean.Duties[name] = make(map[string]string)
		}
	}
	t.Duties = clean.Duties
	return nil
}

// Validate trims the names and rejects empty or duplicate (case-insensitive) entries.
func (c *Children) Validate(validate *validator.Validate) error {
	for i := range c.Children {
		c.Children[i] = core.CleanString(c.Children[i])
	}
	if c.Children == nil {
		c.Children = []string{}
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	if dup := firstDuplicate(c.Children); dup != "" {
		return core.NewFieldError("children", fmt.Sprintf(errDuplicateName, dup))
	}
	return nil
}

// Validate trims the names, fills in missing map links and rejects duplicate crossings.
func (c *Crossings) Validate(validate *validator.Validate) error {
	names := make([]string, len(c.Crossings))
	for i := range c.Crossings {
		cr := &c.Crossings[i]
		cr.Name = core.CleanString(cr.Name)
		cr.GoogleMapsLink = core.CleanString(cr.GoogleMapsLink)
		if cr.Name != "" && cr.GoogleMapsLink == "" {
			cr.GoogleMapsLink = DefaultMapsLink(cr.Name)
		}
		names[i] = cr.Name
	}
	if c.Crossings == nil {
		c.Crossings = []Crossing{}
	}
	if err := validate.Struct(c); err != nil {
		return err
	}
	if dup := firstDuplicate(names); dup != "" {
		return core.NewFieldError("crossings", fmt.Sprintf(errDuplicateName, dup))
	}
	return nil
}

func (s *Schedule) Validate(validate *validator.Validate) error {
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.StartDate != "" && s.EndDate != "" && s.EndDate < s.StartDate {
		return core.NewFieldError("endDate", "endDate cannot be before startDate")
	}
	return nil
}

func (e *AuditEntry) Validate(validate *validator.Validate) error {
	e.FromChild = core.CleanString(e.FromChild)
	e.ToChild = core.CleanString(e.ToChild)
	return validate.Struct(e)
}

func (r *SwapRequest) Validate(validate *validator.Validate) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.From == r.To {
		return core.NewValidationError(errors.New("source and target are the same slot"))
	}
	return nil
}

func (n *NotificationSettings) Validate(validate *validator.Validate) error {
	n.Time = core.CleanString(n.Time)
	return validate.Struct(n)
}

// UnknownChildren returns a warning for every assigned child missing from known,
// suggesting the closest known name when one is similar enough.
func UnknownChildren(t Table, known []string) []string {
	set := make(map[string]bool, len(known))
	for _, name := range known {
		set[strings.ToLower(name)] = true
	}

	var unknown []string
	for child := range t.Distribution() {
		if !set[strings.ToLower(child)] {
			unknown = append(unknown, child)
		}
	}
	sort.Strings(unknown)

	warnings := make([]string, 0, len(unknown))
	for _, child := range unknown {
		if match := closestName(child, known); match != "" {
			warnings = append(warnings, fmt.Sprintf("%q is not in the children list, did you mean %q?", child, match))
		} else {
			warnings = append(warnings, fmt.Sprintf("%q is not in the children list", child))
		}
	}
	return warnings
}

func closestName(name string, known []string) string {
	var (
		best      string
		bestRatio float64
	)
	lname := strings.Split(strings.ToLower(name), "")
	for _, candidate := range known {
		ratio := difflib.NewMatcher(lname, strings.Split(strings.ToLower(candidate), "")).Ratio()
		if ratio >= similarNameRatio && ratio > bestRatio {
			best, bestRatio = candidate, ratio
		}
	}
	return best
}

func firstDuplicate(names []string) string {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		key := strings.ToLower(name)
		if seen[key] {
			return name
		}
		seen[key] = true
	}
	return ""
}
