package job

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adrianliechti/glimpse/pkg/provider"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrPageWritten       = errors.New("page already written")
	ErrPageIndex         = errors.New("page index out of range")
)

type State string

const (
	StateCreated     State = "created"
	StateRasterizing State = "rasterizing"
	StateProcessing  State = "processing"
	StateAssembling  State = "assembling"
	StateDone        State = "done"
	StateCancelled   State = "cancelled"
	StateFailed      State = "failed"
)

var transitions = map[State][]State{
	StateCreated:     {StateRasterizing, StateCancelled},
	StateRasterizing: {StateProcessing, StateCancelled, StateFailed},
	StateProcessing:  {StateAssembling, StateCancelled, StateFailed},
	StateAssembling:  {StateDone, StateFailed},
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatDOCX     Format = "docx"
	FormatJSON     Format = "json"
)

type Options struct {
	Format Format

	Mode   provider.Mode
	Term   string
	Prompt string

	DPI int

	ExtractImages bool
	Caption       bool
}

// Job is one document conversion. Page slots are created once the page count
// is known and every slot is written exactly once.
type Job struct {
	ID     string
	Source string

	Options Options

	Created time.Time

	cancelled atomic.Bool

	mu sync.RWMutex

	state State
	err   error

	pages []Page
}

func New(source string, options Options) *Job {
	return &Job{
		ID:     uuid.NewString(),
		Source: source,

		Options: options,

		Created: time.Now(),

		state: StateCreated,
	}
}

func (j *Job) State() State {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.state
}

func (j *Job) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.err
}

func (j *Job) Transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.transition(to)
}

func (j *Job) transition(to State) error {
	for _, s := range transitions[j.state] {
		if s == to {
			j.state = to
			return nil
		}
	}

	return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, j.state, to)
}

// Fail ends the job with a job-fatal error.
func (j *Job) Fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transition(StateFailed); err != nil {
		return err
	}

	j.err = err

	return nil
}

// Cancel asks the job to stop dispatching pages. Pages already in flight
// still finish.
func (j *Job) Cancel() {
	j.cancelled.Store(true)
}

func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

// Init creates a pending slot for every page.
func (j *Job) Init(total int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.pages = make([]Page, total)

	for i := range j.pages {
		j.pages[i] = PendingPage(i)
	}
}

// Complete writes the terminal result of one page into its slot.
func (j *Job) Complete(page Page) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if page.Index < 0 || page.Index >= len(j.pages) {
		return fmt.Errorf("%w: %d", ErrPageIndex, page.Index)
	}

	if j.pages[page.Index].Status != StatusPending {
		return fmt.Errorf("%w: %d", ErrPageWritten, page.Index)
	}

	if page.Status == StatusPending {
		return fmt.Errorf("page %d: pending is not a terminal status", page.Index)
	}

	j.pages[page.Index] = page

	return nil
}

func (j *Job) Page(index int) (Page, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if index < 0 || index >= len(j.pages) {
		return Page{}, false
	}

	return j.pages[index], true
}

// Pages returns a copy of all page slots in source order.
func (j *Job) Pages() []Page {
	j.mu.RLock()
	defer j.mu.RUnlock()

	pages := make([]Page, len(j.pages))
	copy(pages, j.pages)

	return pages
}

func (j *Job) Total() int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return len(j.pages)
}

func (j *Job) Completed() int {
	return j.count(func(p Page) bool { return p.Status != StatusPending })
}

func (j *Job) Failed() int {
	return j.count(func(p Page) bool { return p.Status == StatusFailed })
}

func (j *Job) count(fn func(Page) bool) int {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var n int

	for _, p := range j.pages {
		if fn(p) {
			n++
		}
	}

	return n
}

type Snapshot struct {
	ID     string
	Source string

	State State

	Total     int
	Completed int
	Failed    int

	Error string
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()

	s := Snapshot{
		ID:     j.ID,
		Source: j.Source,

		State: j.state,

		Total: len(j.pages),
	}

	if j.err != nil {
		s.Error = j.err.Error()
	}

	for _, p := range j.pages {
		if p.Status != StatusPending {
			s.Completed++
		}

		if p.Status == StatusFailed {
			s.Failed++
		}
	}

	j.mu.RUnlock()

	return s
}
