package notification

import (
	"context"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/trafikkvakt/core"
	"github.com/trezcool/trafikkvakt/core/duty"
)

const (
	dailyTemplate = "daily_duties"
	sendTimeout   = 2 * time.Minute
)

var (
	NowFunc = time.Now // mockable

	errInvalidTime = "Invalid time format. Use HH:MM format (e.g., 07:00)"
)

type (
	// DutySource lists the duties of a weekday.
	DutySource interface {
		DutiesForDay(ctx context.Context, day string) ([]duty.TodayDuty, error)
	}

	Options struct {
		Duties    DutySource
		Messenger Messenger
		Mailer    core.EmailService // optional
		Emails    []string
		Logger    core.Logger
		Location  *time.Location
		Enabled   bool
		Time      string // HH:MM
	}

	// Scheduler sends the daily duty notification every weekday at a configured time.
	Scheduler struct {
		duties    DutySource
		messenger Messenger
		mailer    core.EmailService
		emails    []mail.Address
		logger    core.Logger
		loc       *time.Location

		mu      sync.Mutex
		cron    *cron.Cron
		entryID cron.EntryID
		enabled bool
		time    string
	}

	dailyEmailData struct {
		Message  string
		DateText string
		Duties   []duty.TodayDuty
	}
)

func NewScheduler(opts Options) *Scheduler {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		duties:    opts.Duties,
		messenger: opts.Messenger,
		mailer:    opts.Mailer,
		logger:    opts.Logger,
		loc:       loc,
		enabled:   opts.Enabled,
		time:      opts.Time,
	}
	for _, addr := range opts.Emails {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			opts.Logger.Warn("ignoring invalid notification email", map[string]interface{}{"email": addr})
			continue
		}
		s.emails = append(s.emails, *parsed)
	}
	return s
}

// CronSpec turns "HH:MM" into a weekday cron spec ("M H * * 1-5").
func CronSpec(hhmm string) (string, error) {
	if !core.IsHHMM(hhmm) {
		return "", core.NewFieldError("time", errInvalidTime)
	}
	parts := strings.SplitN(hhmm, ":", 2)
	hours, _ := strconv.Atoi(parts[0])
	minutes, _ := strconv.Atoi(parts[1])
	return strconv.Itoa(minutes) + " " + strconv.Itoa(hours) + " * * 1-5", nil
}

// Start schedules the daily job. It does nothing when notifications are disabled.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.start()
}

// caller must hold the lock
func (s *Scheduler) start() error {
	if !s.enabled || s.cron != nil {
		return nil
	}
	spec, err := CronSpec(s.time)
	if err != nil {
		return err
	}

	c := cron.New(cron.WithLocation(s.loc))
	id, err := c.AddFunc(spec, s.run)
	if err != nil {
		return errors.Wrapf(err, "scheduling %q", spec)
	}
	c.Start()
	s.cron, s.entryID = c, id
	s.logger.Info("daily notification scheduled", map[string]interface{}{"cron": spec, "timezone": s.loc.String()})
	return nil
}

// Stop unschedules the job and waits for a running send to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stop()
}

// caller must hold the lock
func (s *Scheduler) stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}

// Configure applies new settings, rescheduling the job as needed.
func (s *Scheduler) Configure(hhmm string, enabled bool) error {
	if _, err := CronSpec(hhmm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stop()
	s.time, s.enabled = hhmm, enabled
	return s.start()
}

// UpdateSchedule changes the time of day, keeping the enabled flag.
func (s *Scheduler) UpdateSchedule(hhmm string) error {
	s.mu.Lock()
	enabled := s.enabled
	s.mu.Unlock()
	return s.Configure(hhmm, enabled)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:          s.enabled,
		Running:          s.cron != nil,
		NotificationTime: s.time,
		Timezone:         s.loc.String(),
	}
	if s.cron != nil {
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			st.NextScheduled = &next
		}
	}
	return st
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if _, err := s.CheckAndSendTodaysDuties(ctx); err != nil {
		s.logger.Error("sending daily notification", err)
	}
}

// CheckAndSendTodaysDuties sends today's duties, skipping weekends.
// The duties template is tried first, then the hello_world template.
func (s *Scheduler) CheckAndSendTodaysDuties(ctx context.Context) (Report, error) {
	now := NowFunc().In(s.loc)
	report := Report{Day: DayKey(now)}
	if report.Day == "" {
		report.Skipped, report.Reason = true, "weekend"
		return report, nil
	}

	duties, err := s.duties.DutiesForDay(ctx, report.Day)
	if err != nil {
		return report, errors.Wrap(err, "getting today's duties")
	}
	report.DutiesCount = len(duties)
	report.DateText = DateText(now)
	report.DutiesText = DutiesText(duties)

	res, err := s.messenger.SendDutiesTemplate(ctx, report.DateText, report.DutiesText, "")
	var fbErr *FallbackError
	switch {
	case errors.As(err, &fbErr):
		// hello_world was already tried
		report.FellBack = true
		return report, errors.Wrap(fbErr.Err, "sending hello_world template")
	case err != nil:
		s.logger.Warn("duties template failed, sending hello_world", err)
		report.FellBack = true
		if res, err = s.messenger.SendHelloWorld(ctx, ""); err != nil {
			return report, errors.Wrap(err, "sending hello_world template")
		}
	case res.Template == HelloWorldTemplate:
		report.FellBack = true
	}
	report.Result = &res

	report.Emailed = s.email(duties, now, report.DateText)
	return report, nil
}

func (s *Scheduler) email(duties []duty.TodayDuty, now time.Time, dateText string) int {
	if s.mailer == nil || len(s.emails) == 0 {
		return 0
	}
	s.mailer.SendMessages(&core.EmailMessage{
		To:           s.emails,
		Subject:      "Trafikkvakter " + dateText,
		TemplateName: dailyTemplate,
		TemplateData: dailyEmailData{
			Message:  TodayMessage(duties, now),
			DateText: dateText,
			Duties:   duties,
		},
	})
	return len(s.emails)
}

// SendTest sends the hello_world template to the default recipient.
func (s *Scheduler) SendTest(ctx context.Context) (SendResult, error) {
	res, err := s.messenger.SendHelloWorld(ctx, "")
	return res, errors.Wrap(err, "sending test notification")
}

// TodaysDuties returns today's duties and the local time they were computed for.
func (s *Scheduler) TodaysDuties(ctx context.Context) ([]duty.TodayDuty, time.Time, error) {
	now := NowFunc().In(s.loc)
	day := DayKey(now)
	if day == "" {
		return []duty.TodayDuty{}, now, nil
	}
	duties, err := s.duties.DutiesForDay(ctx, day)
	if err != nil {
		return nil, now, errors.Wrap(err, "getting today's duties")
	}
	if duties == nil {
		duties = []duty.TodayDuty{}
	}
	return duties, now, nil
}

// Location is the timezone the notification is scheduled in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}
