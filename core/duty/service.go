package duty

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/trafikkvakt/core"
)

// DutyUpdateEvent is the event type live subscribers receive after every duty write.
const DutyUpdateEvent = "duty-update"

var (
	NowFunc = time.Now // mockable

	errNoChildren  = errors.New("no children available for auto-fill")
	errNoCrossings = errors.New("no crossings available for auto-fill")
	errEmptySource = errors.New("source slot has no duty to move")
)

type (
	Repository interface {
		GetDuties(ctx context.Context) (Table, error)
		SaveDuties(ctx context.Context, t Table) error
		GetChildren(ctx context.Context) (Children, error)
		SaveChildren(ctx context.Context, c Children) error
		GetCrossings(ctx context.Context) (Crossings, error)
		SaveCrossings(ctx context.Context, c Crossings) error
		GetSchedule(ctx context.Context) (Schedule, error)
		SaveSchedule(ctx context.Context, s Schedule) error
		// GetNotificationSettings returns ok=false when nothing was ever saved.
		GetNotificationSettings(ctx context.Context) (settings NotificationSettings, ok bool, err error)
		SaveNotificationSettings(ctx context.Context, n NotificationSettings) error
		// ListAuditEntries returns the audit log oldest first.
		ListAuditEntries(ctx context.Context) ([]AuditEntry, error)
		AddAuditEntry(ctx context.Context, e AuditEntry) error
		ClearAuditLog(ctx context.Context) error
	}

	// Broadcaster pushes events to live subscribers.
	Broadcaster interface {
		Broadcast(eventType string, data interface{})
	}

	Service struct {
		repo    Repository
		events  Broadcaster
		logger  core.Logger
		shuffle func(n int, swap func(i, j int))

		mu sync.Mutex // serialises read-modify-write operations

		verMu      sync.RWMutex
		lastUpdate time.Time
	}
)

func NewService(repo Repository, events Broadcaster, logger core.Logger) *Service {
	return &Service{
		repo:       repo,
		events:     events,
		logger:     logger,
		shuffle:    rand.New(rand.NewSource(time.Now().UnixNano())).Shuffle,
		lastUpdate: NowFunc().UTC(),
	}
}

// Data version

// DataVersion is the time of the last successful write.
func (svc *Service) DataVersion() time.Time {
	svc.verMu.RLock()
	defer svc.verMu.RUnlock()
	return svc.lastUpdate
}

func (svc *Service) touch() time.Time {
	svc.verMu.Lock()
	defer svc.verMu.Unlock()
	now := NowFunc().UTC()
	if !now.After(svc.lastUpdate) {
		now = svc.lastUpdate.Add(time.Millisecond)
	}
	svc.lastUpdate = now
	return now
}

func (svc *Service) notify(changeType string, data interface{}, at time.Time) {
	if svc.events == nil {
		return
	}
	svc.events.Broadcast(DutyUpdateEvent, Change{Type: changeType, Data: data, Timestamp: at})
}

// Reloaded bumps the data version after the stored data changed outside the API.
func (svc *Service) Reloaded(source string) {
	at := svc.touch()
	svc.logger.Info("stored data changed externally", map[string]interface{}{"source": source})
	svc.notify(ChangeReloaded, map[string]string{"source": source}, at)
}

// Duties

func (svc *Service) GetDuties(ctx context.Context) (Table, error) {
	t, err := svc.repo.GetDuties(ctx)
	return t, errors.Wrap(err, "getting duties")
}

// PutDuties replaces the duty table and returns a warning for every assigned name
// that is not in the children list.
func (svc *Service) PutDuties(ctx context.Context, t Table) ([]string, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := svc.repo.SaveDuties(ctx, t); err != nil {
		return nil, errors.Wrap(err, "saving duties")
	}
	at := svc.touch()
	svc.notify(ChangeUpdated, t, at)

	children, err := svc.repo.GetChildren(ctx)
	if err != nil {
		svc.logger.Warn("could not load children to check duty names", err)
		return nil, nil
	}
	return UnknownChildren(t, children.Children), nil
}

// AutoFill assigns every (crossing, weekday) slot round-robin over a shuffled children
// list, replacing the table and clearing the audit log.
func (svc *Service) AutoFill(ctx context.Context) (AutoFillResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	children, err := svc.repo.GetChildren(ctx)
	if err != nil {
		return AutoFillResult{}, errors.Wrap(err, "getting children")
	}
	crossings, err := svc.repo.GetCrossings(ctx)
	if err != nil {
		return AutoFillResult{}, errors.Wrap(err, "getting crossings")
	}

	t, err := autoFill(children.Children, crossings.Crossings, svc.shuffle)
	if err != nil {
		return AutoFillResult{}, err
	}

	if err = svc.repo.ClearAuditLog(ctx); err != nil {
		// a stale audit log is not worth failing the fill
		svc.logger.Error("clearing audit log after auto-fill", errors.WithStack(err))
	}
	if err = svc.repo.SaveDuties(ctx, t); err != nil {
		return AutoFillResult{}, errors.Wrap(err, "saving duties")
	}
	at := svc.touch()
	svc.notify(ChangeAutoFilled, t, at)

	return AutoFillResult{Success: true, Distribution: t.Distribution(), Duties: t}, nil
}

func autoFill(children []string, crossings []Crossing, shuffle func(n int, swap func(i, j int))) (Table, error) {
	if len(children) == 0 {
		return Table{}, core.NewValidationError(errNoChildren)
	}
	if len(crossings) == 0 {
		return Table{}, core.NewValidationError(errNoCrossings)
	}

	shuffled := make([]string, len(children))
	copy(shuffled, children)
	shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	t := NewTable()
	i := 0
	for _, crossing := range crossings {
		for _, day := range core.Weekdays {
			t.Set(Slot{Crossing: crossing.Name, Day: day}, shuffled[i%len(shuffled)])
			i++
		}
	}
	return t, nil
}

// Swap exchanges the children of two slots, or moves the child when the target is empty.
// Exactly one audit entry is recorded.
func (svc *Service) Swap(ctx context.Context, req SwapRequest) (SwapResult, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	t, err := svc.repo.GetDuties(ctx)
	if err != nil {
		return SwapResult{}, errors.Wrap(err, "getting duties")
	}

	fromChild, toChild := t.Get(req.From), t.Get(req.To)
	if fromChild == "" {
		return SwapResult{}, core.NewValidationError(errEmptySource)
	}

	swapType := SwapTypeMove
	if toChild != "" {
		swapType = SwapTypeSwap
	}
	orig := t
	t = t.Clone()
	t.Set(req.To, fromChild)
	t.Set(req.From, toChild)

	if err = svc.repo.SaveDuties(ctx, t); err != nil {
		return SwapResult{}, errors.Wrap(err, "saving duties")
	}

	entry := AuditEntry{
		FromChild:    fromChild,
		ToChild:      toChild,
		FromCrossing: req.From.Crossing,
		FromDay:      req.From.Day,
		ToCrossing:   req.To.Crossing,
		ToDay:        req.To.Day,
		SwapType:     swapType,
	}
	if entry, err = svc.addAuditEntry(ctx, entry); err != nil {
		// a swap without its audit entry is undone
		if rErr := svc.repo.SaveDuties(ctx, orig); rErr != nil {
			svc.logger.Error("restoring duties after failed swap", rErr)
			at := svc.touch()
			svc.notify(ChangeSwapped, t, at)
		}
		return SwapResult{}, err
	}

	at := svc.touch()
	svc.notify(ChangeSwapped, t, at)
	return SwapResult{SwapType: swapType, Entry: entry, Duties: t}, nil
}

// Audit log

func (svc *Service) AuditLog(ctx context.Context) ([]AuditEntry, error) {
	entries, err := svc.repo.ListAuditEntries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing audit entries")
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}

func (svc *Service) AddAuditEntry(ctx context.Context, e AuditEntry) (AuditEntry, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.addAuditEntry(ctx, e)
}

// addAuditEntry always assigns a fresh id; the id becomes part of the storage key.
func (svc *Service) addAuditEntry(ctx context.Context, e AuditEntry) (AuditEntry, error) {
	e.ID = uuid.New().String()
	if e.Timestamp.IsZero() {
		e.Timestamp = NowFunc().UTC()
	}
	if err := svc.repo.AddAuditEntry(ctx, e); err != nil {
		return AuditEntry{}, errors.Wrap(err, "adding audit entry")
	}
	return e, nil
}

func (svc *Service) ClearAuditLog(ctx context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return errors.Wrap(svc.repo.ClearAuditLog(ctx), "clearing audit log")
}

// Config

func (svc *Service) GetChildren(ctx context.Context) (Children, error) {
	c, err := svc.repo.GetChildren(ctx)
	return c, errors.Wrap(err, "getting children")
}

func (svc *Service) PutChildren(ctx context.Context, c Children) error {
	if err := svc.repo.SaveChildren(ctx, c); err != nil {
		return errors.Wrap(err, "saving children")
	}
	svc.touch()
	return nil
}

func (svc *Service) GetCrossings(ctx context.Context) (Crossings, error) {
	c, err := svc.repo.GetCrossings(ctx)
	return c, errors.Wrap(err, "getting crossings")
}

func (svc *Service) PutCrossings(ctx context.Context, c Crossings) error {
	if err := svc.repo.SaveCrossings(ctx, c); err != nil {
		return errors.Wrap(err, "saving crossings")
	}
	svc.touch()
	return nil
}

func (svc *Service) GetSchedule(ctx context.Context) (Schedule, error) {
	s, err := svc.repo.GetSchedule(ctx)
	return s, errors.Wrap(err, "getting schedule")
}

func (svc *Service) PutSchedule(ctx context.Context, s Schedule) error {
	if err := svc.repo.SaveSchedule(ctx, s); err != nil {
		return errors.Wrap(err, "saving schedule")
	}
	svc.touch()
	return nil
}

// ScheduleFromDate stores and returns the ISO week (Monday to Sunday) containing date.
func (svc *Service) ScheduleFromDate(ctx context.Context, date time.Time) (Schedule, error) {
	s := WeekOf(date)
	if err := svc.PutSchedule(ctx, s); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// WeekOf returns the ISO week (Monday to Sunday) containing date.
func WeekOf(date time.Time) Schedule {
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(date.Weekday()) + 6) % 7 // days since Monday
	start := date.AddDate(0, 0, -offset)
	year, week := date.ISOWeek()
	return Schedule{
		StartDate:  core.FormatDate(start),
		EndDate:    core.FormatDate(start.AddDate(0, 0, 6)),
		WeekNumber: week,
		Year:       year,
	}
}

// GetNotificationSettings returns the stored settings, or def if none were saved.
func (svc *Service) GetNotificationSettings(ctx context.Context, def NotificationSettings) (NotificationSettings, error) {
	n, ok, err := svc.repo.GetNotificationSettings(ctx)
	if err != nil {
		return def, errors.Wrap(err, "getting notification settings")
	}
	if !ok {
		return def, nil
	}
	return n, nil
}

func (svc *Service) PutNotificationSettings(ctx context.Context, n NotificationSettings) error {
	if err := svc.repo.SaveNotificationSettings(ctx, n); err != nil {
		return errors.Wrap(err, "saving notification settings")
	}
	svc.touch()
	return nil
}

// DutiesForDay lists the duties of a weekday in crossings config order.
func (svc *Service) DutiesForDay(ctx context.Context, day string) ([]TodayDuty, error) {
	t, err := svc.repo.GetDuties(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting duties")
	}
	crossings, err := svc.repo.GetCrossings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "getting crossings")
	}
	return t.ForDay(day, crossings.Crossings), nil
}
