package pool

import (
	"strings"

	"github.com/coachpo/spawnpool/errs"
)

// Discipline selects which free instance an acquisition reuses.
type Discipline uint8

const (
	// Stack reuses the most recently returned instance first.
	Stack Discipline = iota
	// Queue reuses the instance that has been free the longest.
	Queue
)

func (d Discipline) String() string {
	if d == Queue {
		return "queue"
	}
	return "stack"
}

// ParseDiscipline maps "stack" or "queue" (case-insensitive) to a Discipline.
func ParseDiscipline(s string) (Discipline, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stack", "lifo":
		return Stack, nil
	case "queue", "fifo":
		return Queue, nil
	default:
		return Stack, errs.New("pool", errs.CodeInvalidArgument, errs.WithMessagef("unknown discipline %q", s))
	}
}

// ForeignPolicy decides what happens to an object returned to a pool that
// never created it. The object is rejected either way.
type ForeignPolicy uint8

const (
	// ForeignDestroy destroys the foreign object.
	ForeignDestroy ForeignPolicy = iota
	// ForeignIgnore leaves the foreign object untouched.
	ForeignIgnore
)

func (f ForeignPolicy) String() string {
	if f == ForeignIgnore {
		return "ignore"
	}
	return "destroy"
}

// ParseForeignPolicy maps "destroy" or "ignore" to a ForeignPolicy.
func ParseForeignPolicy(s string) (ForeignPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "destroy":
		return ForeignDestroy, nil
	case "ignore":
		return ForeignIgnore, nil
	default:
		return ForeignDestroy, errs.New("pool", errs.CodeInvalidArgument, errs.WithMessagef("unknown foreign policy %q", s))
	}
}

type options struct {
	initialSize   int
	discipline    Discipline
	containerName string
	persistent    bool
	foreign       ForeignPolicy
}

// Option configures a pool at creation time. Options passed for a template
// whose pool already exists are ignored.
type Option func(*options)

// WithInitialSize prewarms the pool with n free instances.
func WithInitialSize(n int) Option {
	return func(o *options) { o.initialSize = n }
}

// WithDiscipline selects stack (default) or queue reuse order.
func WithDiscipline(d Discipline) Option {
	return func(o *options) { o.discipline = d }
}

// WithContainerName names the container free instances are parked under.
// It also becomes the pool name.
func WithContainerName(name string) Option {
	trimmed := strings.TrimSpace(name)
	return func(o *options) { o.containerName = trimmed }
}

// Persistent keeps the pool alive across world teardown. Outstanding
// instances are returned instead of destroyed.
func Persistent() Option {
	return func(o *options) { o.persistent = true }
}

// WithForeignPolicy overrides the default ForeignDestroy policy.
func WithForeignPolicy(p ForeignPolicy) Option {
	return func(o *options) { o.foreign = p }
}
