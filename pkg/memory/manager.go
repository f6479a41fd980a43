package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/pymolagent/internal/observability"
	"github.com/harun/pymolagent/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultMaxShortTerm       = 10
	DefaultPromotionThreshold = 0.7
	DefaultSearchLimit        = 5
	DefaultContextLimit       = 5

	// NoContextSentinel is returned by GetContext when short-term memory is empty.
	NoContextSentinel = "No previous context."

	contextTimeLayout = "15:04"
)

// Config holds memory manager configuration
type Config struct {
	// Store persists long-term memory. Nil keeps everything in process.
	Store Store

	// MaxShortTerm bounds the short-term tier. Zero means DefaultMaxShortTerm.
	MaxShortTerm int

	// PromotionThreshold is the minimum importance for an evicted item to be
	// kept. Nil means DefaultPromotionThreshold, so that 0 stays expressible.
	PromotionThreshold *float64

	Logger zerolog.Logger

	// Clock stamps new items. Defaults to time.Now.
	Clock func() time.Time
}

// Stats reports tier sizes.
type Stats struct {
	ShortTerm int `json:"short_term"`
	LongTerm  int `json:"long_term"`
}

// Manager owns the short-term and long-term tiers. All methods are safe for
// concurrent use; each operation runs under one lock.
type Manager struct {
	mu           sync.Mutex
	shortTerm    []Item
	longTerm     []Item
	maxShortTerm int
	threshold    float64
	store        Store
	logger       zerolog.Logger
	now          func() time.Time
}

// NewManager creates a manager and hydrates long-term memory from the store.
// A store that cannot be read leaves long-term memory empty.
func NewManager(cfg Config) *Manager {
	observability.EnsureRegistered()

	m := &Manager{
		shortTerm:    []Item{},
		longTerm:     []Item{},
		maxShortTerm: cfg.MaxShortTerm,
		threshold:    DefaultPromotionThreshold,
		store:        cfg.Store,
		logger:       cfg.Logger,
		now:          cfg.Clock,
	}
	if m.maxShortTerm <= 0 {
		m.maxShortTerm = DefaultMaxShortTerm
	}
	if cfg.PromotionThreshold != nil {
		m.threshold = *cfg.PromotionThreshold
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.load()
	observability.SetMemoryItems(len(m.shortTerm), len(m.longTerm))

	m.logger.Debug().
		Int("max_short_term", m.maxShortTerm).
		Float64("promotion_threshold", m.threshold).
		Int("long_term", len(m.longTerm)).
		Msg("Memory manager initialized")

	return m
}

// Threshold returns a pointer for Config.PromotionThreshold.
func Threshold(v float64) *float64 {
	return &v
}

func (m *Manager) load() {
	if m.store == nil {
		return
	}
	items, err := m.store.Load()
	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("path", m.store.Path()).
			Msg("Failed to load long-term memory, starting empty")
		return
	}
	m.longTerm = items
}

// AddShortTerm appends a note to short-term memory. When that overflows the
// tier, the oldest note is promoted to long-term memory if its importance
// reaches the threshold and dropped otherwise. Long-term memory is persisted
// on every call.
func (m *Manager) AddShortTerm(content string, opts ...ItemOption) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shortTerm = append(m.shortTerm, NewItem(m.now(), content, opts...))

	if len(m.shortTerm) > m.maxShortTerm {
		oldest := m.shortTerm[0]
		m.shortTerm = append([]Item(nil), m.shortTerm[1:]...)

		promoted := oldest.Importance >= m.threshold
		if promoted {
			m.longTerm = append(m.longTerm, oldest)
		}
		observability.RecordMemoryOverflow(promoted)

		m.logger.Debug().
			Bool("promoted", promoted).
			Float64("importance", oldest.Importance).
			Msg("Short-term memory overflow")
	}

	m.persist()
}

// AddLongTerm appends a note straight to long-term memory and persists it.
func (m *Manager) AddLongTerm(content string, opts ...ItemOption) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.longTerm = append(m.longTerm, NewItem(m.now(), content, opts...))
	m.persist()
}

// persist writes the long-term tier. Callers hold m.mu.
func (m *Manager) persist() {
	observability.SetMemoryItems(len(m.shortTerm), len(m.longTerm))
	if m.store == nil {
		return
	}

	start := time.Now()
	err := m.store.Save(m.longTerm)
	observability.RecordMemoryPersist(time.Since(start), err == nil)
	if err != nil {
		m.logger.Error().
			Err(err).
			Str("path", m.store.Path()).
			Int("long_term", len(m.longTerm)).
			Msg("Failed to persist long-term memory")
	}
}

// SearchMemory returns up to limit notes whose content contains any
// whitespace-separated word of query, ignoring case. Short-term notes are
// considered before long-term ones; results are ordered by importance,
// highest first, keeping that order among equal scores.
func (m *Manager) SearchMemory(query string, limit int) []Item {
	return m.SearchMemoryContext(context.Background(), query, limit)
}

// SearchMemoryContext is SearchMemory with tracing.
func (m *Manager) SearchMemoryContext(ctx context.Context, query string, limit int) []Item {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "pymolagent.memory", "memory.search",
		attribute.Int("limit", limit),
	)
	defer func() {
		observability.RecordMemorySearch(time.Since(start))
		span.End()
	}()

	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 || limit <= 0 {
		return []Item{}
	}

	m.mu.Lock()
	candidates := make([]Item, 0, len(m.shortTerm)+len(m.longTerm))
	candidates = append(candidates, m.shortTerm...)
	candidates = append(candidates, m.longTerm...)
	m.mu.Unlock()

	matches := make([]Item, 0)
	for _, it := range candidates {
		content := strings.ToLower(it.Content)
		for _, w := range words {
			if strings.Contains(content, w) {
				matches = append(matches, it.clone())
				break
			}
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Importance > matches[j].Importance
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}

	span.SetAttributes(attribute.Int("results", len(matches)))
	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().
		Int("candidates", len(candidates)).
		Int("results", len(matches)).
		Msg("Memory search completed")

	return matches
}

// GetContext renders the newest limit short-term notes, oldest first, one
// "[HH:MM] content" line each. A limit of zero or less renders them all.
func (m *Manager) GetContext(limit int) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.shortTerm) == 0 {
		return NoContextSentinel
	}

	recent := m.shortTerm
	if limit > 0 && limit < len(recent) {
		recent = recent[len(recent)-limit:]
	}

	lines := make([]string, 0, len(recent))
	for _, it := range recent {
		lines = append(lines, "["+it.Timestamp.Local().Format(contextTimeLayout)+"] "+it.Content)
	}
	return strings.Join(lines, "\n")
}

// ShortTerm returns a copy of the short-term tier, oldest first.
func (m *Manager) ShortTerm() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItems(m.shortTerm)
}

// LongTerm returns a copy of the long-term tier in arrival order.
func (m *Manager) LongTerm() []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneItems(m.longTerm)
}

// Stats returns the current tier sizes.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{ShortTerm: len(m.shortTerm), LongTerm: len(m.longTerm)}
}

// MaxShortTerm returns the configured short-term capacity.
func (m *Manager) MaxShortTerm() int {
	return m.maxShortTerm
}

// StorePath returns the persisted location, or "" without a store.
func (m *Manager) StorePath() string {
	if m.store == nil {
		return ""
	}
	return m.store.Path()
}

// Close releases the store.
func (m *Manager) Close() error {
	if m.store == nil {
		return nil
	}
	return m.store.Close()
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it.clone()
	}
	return out
}
