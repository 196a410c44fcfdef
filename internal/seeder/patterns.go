package seeder

import (
	"fmt"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/estatehub/sentinel/internal/models"
)

// Params configures one generated burst.
type Params struct {
	// Actor is the targeted actor. A fake username is used when empty.
	Actor string

	Count  int
	Spread time.Duration
	Now    time.Time
}

// Pattern generates a family of log events.
type Pattern interface {
	Name() string
	Description() string
	Generate(f *gofakeit.Faker, p Params) []*models.LogEvent
}

var registry = map[string]Pattern{}

func register(p Pattern) {
	registry[p.Name()] = p
}

func init() {
	register(bruteForce{})
	register(signupAbuse{})
	register(critical{})
	register(noise{})
}

// Lookup returns a registered pattern by name.
func Lookup(name string) (Pattern, bool) {
	p, ok := registry[name]
	return p, ok
}

// Patterns lists registered pattern names.
func Patterns() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var failureReasons = []string{
	"Invalid credentials",
	"Account locked",
	"Password expired",
	"Invalid username or password",
	"Too many failed attempts",
}

// bruteForce is a run of failed logins against one actor from rotating IPs.
type bruteForce struct{}

func (bruteForce) Name() string { return "brute-force" }

func (bruteForce) Description() string {
	return "Failed login attempts against one actor from several source IPs"
}

func (bruteForce) Generate(f *gofakeit.Faker, p Params) []*models.LogEvent {
	actor := actorOrFake(f, p.Actor)
	ips := make([]string, max(1, p.Count/3))
	for i := range ips {
		ips[i] = f.IPv4Address()
	}

	events := make([]*models.LogEvent, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		ip := ips[i%len(ips)]
		ev := models.NewLogEvent(models.EventTypeWarning, "auth.login_failed", actor,
			fmt.Sprintf("Failed login attempt for %s from %s", actor, ip))
		ev.CreatedAt = jitteredTime(f, p.Now, p.Spread, i, p.Count)
		ev.Metadata = map[string]any{
			"ip":        ip,
			"userAgent": f.UserAgent(),
			"reason":    f.RandomString(failureReasons),
		}
		events = append(events, ev)
	}
	return events
}

// signupAbuse is repeated signup errors attributed to one actor.
type signupAbuse struct{}

func (signupAbuse) Name() string { return "signup-abuse" }

func (signupAbuse) Description() string {
	return "Repeated signup failures from one actor"
}

func (signupAbuse) Generate(f *gofakeit.Faker, p Params) []*models.LogEvent {
	actor := actorOrFake(f, p.Actor)
	events := make([]*models.LogEvent, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		ev := models.NewLogEvent(models.EventTypeError, "user.signup_rejected", actor,
			"Signup rejected: "+f.RandomString([]string{"email already registered", "captcha failed", "disposable email"}))
		ev.CreatedAt = jitteredTime(f, p.Now, p.Spread, i, p.Count)
		ev.Metadata = map[string]any{"ip": f.IPv4Address(), "email": f.Email()}
		events = append(events, ev)
	}
	return events
}

// critical is a single P0 security error.
type critical struct{}

func (critical) Name() string { return "critical" }

func (critical) Description() string {
	return "One P0 authentication error"
}

func (critical) Generate(f *gofakeit.Faker, p Params) []*models.LogEvent {
	actor := actorOrFake(f, p.Actor)
	ev := models.NewLogEvent(models.EventTypeError, "auth.token_reuse", actor,
		"Refresh token reuse detected")
	ev.Priority = models.PriorityP0
	ev.CreatedAt = p.Now
	ev.Metadata = map[string]any{"ip": f.IPv4Address(), "sessionId": f.UUID()}
	return []*models.LogEvent{ev}
}

// noise is ordinary info traffic from random actors. None of it is an incident.
type noise struct{}

func (noise) Name() string { return "noise" }

func (noise) Description() string {
	return "Routine info events from random actors"
}

func (noise) Generate(f *gofakeit.Faker, p Params) []*models.LogEvent {
	actions := []string{"auth.login", "page.view", "listing.search", "listing.view", "user.profile_updated"}
	events := make([]*models.LogEvent, 0, p.Count)
	for i := 0; i < p.Count; i++ {
		ev := models.NewLogEvent(models.EventTypeInfo, f.RandomString(actions), f.Username(), f.HackerPhrase())
		ev.CreatedAt = jitteredTime(f, p.Now, p.Spread, i, p.Count)
		events = append(events, ev)
	}
	return events
}

func actorOrFake(f *gofakeit.Faker, actor string) string {
	if actor != "" {
		return actor
	}
	return f.Username()
}

// jitteredTime spreads total events evenly over the span ending at now, with
// up to 40% of the spacing as jitter. Results never fall outside the span.
func jitteredTime(f *gofakeit.Faker, now time.Time, spread time.Duration, index, total int) time.Time {
	if spread <= 0 || total == 0 {
		return now
	}
	start := now.Add(-spread)
	step := float64(spread) / float64(total)
	offset := time.Duration(float64(index)*step + f.Float64Range(-0.4, 0.4)*step)
	if offset < 0 {
		offset = 0
	}
	if offset > spread {
		offset = spread
	}
	return start.Add(offset)
}
