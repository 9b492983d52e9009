package engine

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"meshgate/internal/automation"
	"meshgate/internal/metrics"
	"meshgate/internal/models"
	"meshgate/internal/resource"
	"meshgate/internal/rules"
	"meshgate/internal/utils"

	"github.com/rs/zerolog"
)

var (
	ErrRuleNotFound = errors.New("rule not found")
	ErrRuleDeleted  = errors.New("rule is deleted")
	ErrStopped      = errors.New("engine stopped")
)

// SaveKindRules is the save-queue kind the engine requests flushes for
const SaveKindRules = "rules"

// Repository persists rule records
type Repository interface {
	LoadRules(ctx context.Context) ([]models.RuleRecord, error)
	SaveRules(ctx context.Context, records []models.RuleRecord) error
	DeleteRules(ctx context.Context, ids []string) error
}

// SaveRequester coalesces flush requests
type SaveRequester interface {
	QueSave(kind string, delay time.Duration)
}

// Options configures an Engine. Zero values pick the defaults.
type Options struct {
	Dispatcher            automation.Dispatcher
	Repository            Repository
	Saves                 SaveRequester
	Metrics               *metrics.EngineMetrics
	LegacyActions         bool
	SaveDelay             time.Duration
	TriggerSaveDelay      time.Duration
	BindingVerifyInterval time.Duration

	// SweepInterval is how often Sweep runs. Periodic rules with a shorter
	// period fire at sweep granularity.
	SweepInterval time.Duration
	QueueSize     int
	Now           func() time.Time
}

// Engine owns every rule. All rule state is touched only from the loop
// goroutine; the exported methods hand closures to it.
type Engine struct {
	store *resource.Store
	opts  Options
	log   *zerolog.Logger

	requests chan func()
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	listenersMu sync.RWMutex
	listeners   []Listener

	// updateMu orders store writes with the evaluations they queue
	updateMu  sync.Mutex
	relatedMu sync.RWMutex
	related   map[string][]string

	// loop owned
	rules     []*rules.Rule
	satisfied map[string]bool
	dirty     map[string]bool
	edges     *automation.EdgeMemory
	bindings  rules.BindingQueue
	lastID    int
}

// NewEngine creates an engine reading attributes from store
func NewEngine(store *resource.Store, opts Options) *Engine {
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = utils.ShortSaveDelay
	}
	if opts.TriggerSaveDelay <= 0 {
		opts.TriggerSaveDelay = utils.ShortSaveDelay
	}
	if opts.BindingVerifyInterval <= 0 {
		opts.BindingVerifyInterval = 5 * time.Minute
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		store:     store,
		opts:      opts,
		log:       utils.Logger("engine"),
		requests:  make(chan func(), opts.QueueSize),
		done:      make(chan struct{}),
		satisfied: make(map[string]bool),
		dirty:     make(map[string]bool),
		edges:     automation.NewEdgeMemory(),
	}
}

// Start loads the persisted rules and launches the evaluation loop
func (e *Engine) Start(ctx context.Context) error {
	loaded, err := e.loadRules(ctx)
	if err != nil {
		return err
	}
	e.rules = loaded
	for _, r := range loaded {
		if n, err := strconv.Atoi(r.ID); err == nil && n > e.lastID {
			e.lastID = n
		}
	}
	e.reindex()
	e.opts.Metrics.SetActiveRules(e.activeCount())

	e.wg.Add(1)
	go e.run(ctx)
	e.log.Info().Int("rules", len(loaded)).Msg("engine started")
	return nil
}

// Stop ends the loop. Requests issued afterwards fail with ErrStopped.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
	e.log.Info().Msg("engine stopped")
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			e.stopOnce.Do(func() { close(e.done) })
			return
		case <-e.done:
			return
		case fn := <-e.requests:
			fn()
		}
	}
}

// post queues fn on the loop without waiting for it
func (e *Engine) post(fn func()) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.requests <- fn:
		return nil
	case <-e.done:
		return ErrStopped
	}
}

// do runs fn on the loop and waits for it
func (e *Engine) do(fn func()) error {
	finished := make(chan struct{})
	if err := e.post(func() { fn(); close(finished) }); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrStopped
	}
}

func (e *Engine) loadRules(ctx context.Context) ([]*rules.Rule, error) {
	if e.opts.Repository == nil {
		return nil, nil
	}
	records, err := e.opts.Repository.LoadRules(ctx)
	if err != nil {
		return nil, err
	}
	now := e.opts.Now()
	out := make([]*rules.Rule, 0, len(records))
	for _, rec := range records {
		r, err := rules.FromRecord(rec, e.store.Registry())
		if err != nil {
			e.log.Error().Err(err).Str("rule", rec.ID).Msg("skipping unreadable rule record")
			continue
		}
		if len(r.Actions) == 0 {
			e.log.Warn().Str("rule", r.ID).Msg("loaded rule has no actions")
		}
		r.LastTriggeredMono = now
		out = append(out, r)
	}
	sortRules(out)
	return out, nil
}

func sortRules(rs []*rules.Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, errA := strconv.Atoi(rs[i].ID)
		b, errB := strconv.Atoi(rs[j].ID)
		if errA != nil || errB != nil {
			return rs[i].ID < rs[j].ID
		}
		return a < b
	})
}

func (e *Engine) find(id string) *rules.Rule {
	for _, r := range e.rules {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// nextID never hands out an id twice while the engine runs, even after the
// rule holding it was purged
func (e *Engine) nextID() string {
	e.lastID++
	return strconv.Itoa(e.lastID)
}

// reindex publishes which attributes an update has to snapshot
func (e *Engine) reindex() {
	related := automation.RelatedAddresses(e.rules)
	e.relatedMu.Lock()
	e.related = related
	e.relatedMu.Unlock()
}

func (e *Engine) relatedTo(address string) []string {
	e.relatedMu.RLock()
	defer e.relatedMu.RUnlock()
	return e.related[address]
}

func (e *Engine) activeCount() int {
	n := 0
	for _, r := range e.rules {
		if automation.Active(r) {
			n++
		}
	}
	return n
}

func (e *Engine) markDirty(r *rules.Rule, delay time.Duration) {
	e.dirty[r.ID] = true
	if e.opts.Saves != nil {
		e.opts.Saves.QueSave(SaveKindRules, delay)
	}
}

func (e *Engine) forget(id string) {
	delete(e.satisfied, id)
	e.edges.Forget(id)
}
