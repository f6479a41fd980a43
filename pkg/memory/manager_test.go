package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/pymolagent/internal/tracing"
)

// recordingStore counts saves and keeps the last saved snapshot.
type recordingStore struct {
	mu      sync.Mutex
	loaded  []Item
	loadErr error
	saveErr error
	saves   int
	last    []Item
}

func (s *recordingStore) Load() ([]Item, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append([]Item{}, s.loaded...), nil
}

func (s *recordingStore) Save(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.last = cloneItems(items)
	return nil
}

func (s *recordingStore) Path() string { return "memory://test" }
func (s *recordingStore) Close() error { return nil }

func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func newTestManager(t *testing.T, store Store, maxShortTerm int) *Manager {
	t.Helper()
	return NewManager(Config{
		Store:        store,
		MaxShortTerm: maxShortTerm,
		Logger:       zerolog.Nop(),
		Clock:        fixedClock(),
	})
}

func contents(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Content
	}
	return out
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Logger: zerolog.Nop()})

	assert.Equal(t, DefaultMaxShortTerm, m.MaxShortTerm())
	assert.Equal(t, DefaultPromotionThreshold, m.threshold)
	assert.Empty(t, m.ShortTerm())
	assert.Empty(t, m.LongTerm())
	assert.Equal(t, "", m.StorePath())
}

func TestAddShortTerm_DefaultImportanceAndTags(t *testing.T) {
	m := newTestManager(t, nil, 5)

	m.AddShortTerm("note")

	items := m.ShortTerm()
	require.Len(t, items, 1)
	assert.Equal(t, 1.0, items[0].Importance)
	assert.NotNil(t, items[0].Tags)
	assert.Empty(t, items[0].Tags)
}

func TestAddShortTerm_NeverExceedsCapacity(t *testing.T) {
	m := newTestManager(t, nil, 3)

	for i := 0; i < 20; i++ {
		m.AddShortTerm(fmt.Sprintf("item %d", i), WithImportance(float64(i%10)/10))
		assert.LessOrEqual(t, len(m.ShortTerm()), 3)
	}
	assert.Equal(t, []string{"item 17", "item 18", "item 19"}, contents(m.ShortTerm()))
}

func TestAddShortTerm_OverflowDiscardsLowImportance(t *testing.T) {
	m := newTestManager(t, nil, 2)

	m.AddShortTerm("A", WithImportance(0.5))
	m.AddShortTerm("B", WithImportance(0.9))
	m.AddShortTerm("C", WithImportance(0.3))

	assert.Equal(t, []string{"B", "C"}, contents(m.ShortTerm()))
	assert.Empty(t, m.LongTerm())
}

func TestAddShortTerm_OverflowPromotesImportant(t *testing.T) {
	m := newTestManager(t, nil, 2)

	m.AddShortTerm("A", WithImportance(0.8), WithTags("structure"))
	m.AddShortTerm("B", WithImportance(0.9))
	m.AddShortTerm("C", WithImportance(0.3))

	assert.Equal(t, []string{"B", "C"}, contents(m.ShortTerm()))
	long := m.LongTerm()
	require.Len(t, long, 1)
	assert.Equal(t, "A", long[0].Content)
	assert.Equal(t, []string{"structure"}, long[0].Tags)
}

func TestAddShortTerm_ThresholdIsInclusive(t *testing.T) {
	m := newTestManager(t, nil, 1)

	m.AddShortTerm("edge", WithImportance(0.7))
	m.AddShortTerm("next", WithImportance(0.1))

	assert.Equal(t, []string{"edge"}, contents(m.LongTerm()))
}

func TestAddShortTerm_CustomThreshold(t *testing.T) {
	m := NewManager(Config{
		MaxShortTerm:       1,
		PromotionThreshold: Threshold(0),
		Logger:             zerolog.Nop(),
	})

	m.AddShortTerm("zero", WithImportance(0))
	m.AddShortTerm("next")

	assert.Equal(t, []string{"zero"}, contents(m.LongTerm()))
}

func TestAddShortTerm_EvictedItemsConserved(t *testing.T) {
	m := newTestManager(t, nil, 2)
	importances := []float64{0.1, 0.7, 0.95, 0.69, 1.0, 0.2, 0.8}

	for i, imp := range importances {
		m.AddShortTerm(fmt.Sprintf("n%d", i), WithImportance(imp))
	}

	// the first five were evicted; those at or above 0.7 appear once, in order
	assert.Equal(t, []string{"n1", "n2", "n4"}, contents(m.LongTerm()))
	assert.Equal(t, []string{"n5", "n6"}, contents(m.ShortTerm()))
}

func TestAddShortTerm_PersistsEveryCall(t *testing.T) {
	store := &recordingStore{}
	m := newTestManager(t, store, 10)

	m.AddShortTerm("one")
	m.AddShortTerm("two")

	assert.Equal(t, 2, store.saves)
	assert.Empty(t, store.last)
}

func TestAddLongTerm_BypassesShortTerm(t *testing.T) {
	store := &recordingStore{}
	m := newTestManager(t, store, 10)

	m.AddLongTerm("binding site analysis", WithImportance(0.4), WithTags("site", "site"))

	assert.Empty(t, m.ShortTerm())
	long := m.LongTerm()
	require.Len(t, long, 1)
	assert.Equal(t, 0.4, long[0].Importance)
	assert.Equal(t, []string{"site", "site"}, long[0].Tags)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, []string{"binding site analysis"}, contents(store.last))
}

func TestPersistFailureIsNotPropagated(t *testing.T) {
	store := &recordingStore{saveErr: errors.New("disk full")}
	m := newTestManager(t, store, 10)

	assert.NotPanics(t, func() {
		m.AddLongTerm("kept in memory")
		m.AddShortTerm("also kept")
	})

	assert.Equal(t, []string{"kept in memory"}, contents(m.LongTerm()))
	assert.Equal(t, []string{"also kept"}, contents(m.ShortTerm()))
	assert.Equal(t, 2, store.saves)
}

func TestLoadFailureStartsEmpty(t *testing.T) {
	store := &recordingStore{loadErr: ErrStoreCorrupt}
	m := newTestManager(t, store, 10)

	assert.Empty(t, m.LongTerm())

	m.AddLongTerm("fresh")
	assert.Equal(t, []string{"fresh"}, contents(store.last))
}

func TestNewManager_HydratesLongTermOnly(t *testing.T) {
	ts := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	store := &recordingStore{loaded: []Item{
		NewItem(ts, "stored one"),
		NewItem(ts, "stored two"),
	}}

	m := newTestManager(t, store, 10)

	assert.Equal(t, []string{"stored one", "stored two"}, contents(m.LongTerm()))
	assert.Empty(t, m.ShortTerm())
	assert.Equal(t, Stats{ShortTerm: 0, LongTerm: 2}, m.Stats())
}

func TestSearchMemoryContext_LogsWithSession(t *testing.T) {
	var buf bytes.Buffer
	m := NewManager(Config{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel)})
	m.AddLongTerm("ribbon view of 1ubq", WithImportance(0.9))

	ctx := tracing.WithSessionID(context.Background(), "sess-42")
	results := m.SearchMemoryContext(ctx, "ribbon", 5)

	require.Len(t, results, 1)
	assert.Contains(t, buf.String(), `"session_id":"sess-42"`)
	assert.Contains(t, buf.String(), `"results":1`)
	assert.Contains(t, buf.String(), "Memory search completed")
}

func TestSearchMemory_EmptyQuery(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddShortTerm("anything at all")
	m.AddLongTerm("more content")

	assert.Empty(t, m.SearchMemory("", 5))
	assert.Empty(t, m.SearchMemory("   \t\n", 5))
}

func TestSearchMemory_BindingSite(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddLongTerm("binding site analysis")

	results := m.SearchMemory("binding", 5)
	require.Len(t, results, 1)
	assert.Equal(t, "binding site analysis", results[0].Content)

	assert.Empty(t, m.SearchMemory("xyz", 5))
}

func TestSearchMemory_MatchRules(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddShortTerm("Loaded 1UBQ as cartoon", WithTags("ubiquitin"))
	m.AddShortTerm("Colored chain A red")
	m.AddShortTerm("unrelated")

	// case-insensitive substring of any word
	assert.Equal(t, []string{"Loaded 1UBQ as cartoon"}, contents(m.SearchMemory("1ubq", 5)))
	assert.Equal(t, []string{"Loaded 1UBQ as cartoon", "Colored chain A red"}, contents(m.SearchMemory("CARTOON red", 5)))
	assert.Equal(t, []string{"Colored chain A red"}, contents(m.SearchMemory("chai", 5)))

	// tags are not searched
	assert.Empty(t, m.SearchMemory("ubiquitin", 5))
}

func TestSearchMemory_OrderAndStability(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddLongTerm("long protein 0.9", WithImportance(0.9))
	m.AddLongTerm("long protein 0.5", WithImportance(0.5))
	m.AddShortTerm("short protein 0.5", WithImportance(0.5))
	m.AddShortTerm("short protein 0.9", WithImportance(0.9))
	m.AddShortTerm("short protein 1.0", WithImportance(1.0))

	results := m.SearchMemory("protein", 10)

	// short-term precedes long-term among equal importance
	assert.Equal(t, []string{
		"short protein 1.0",
		"short protein 0.9",
		"long protein 0.9",
		"short protein 0.5",
		"long protein 0.5",
	}, contents(results))

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Importance, results[i].Importance)
	}
}

func TestSearchMemory_Limit(t *testing.T) {
	m := newTestManager(t, nil, 10)
	for i := 0; i < 8; i++ {
		m.AddShortTerm(fmt.Sprintf("ligand %d", i))
	}

	assert.Len(t, m.SearchMemory("ligand", 5), 5)
	assert.Len(t, m.SearchMemory("ligand", 100), 8)
	assert.Empty(t, m.SearchMemory("ligand", 0))
	assert.Empty(t, m.SearchMemory("ligand", -1))

	// first five of equal importance keep insertion order
	assert.Equal(t, []string{"ligand 0", "ligand 1", "ligand 2"}, contents(m.SearchMemory("ligand", 3)))
}

func TestSearchMemory_ResultsAreCopies(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddShortTerm("heme pocket", WithTags("a"))

	results := m.SearchMemory("heme", 5)
	results[0].Content = "changed"
	results[0].Tags[0] = "changed"

	fresh := m.ShortTerm()
	assert.Equal(t, "heme pocket", fresh[0].Content)
	assert.Equal(t, []string{"a"}, fresh[0].Tags)
}

func TestGetContext_EmptySentinel(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddLongTerm("long-term does not count")

	assert.Equal(t, NoContextSentinel, m.GetContext(5))
	assert.Equal(t, "No previous context.", m.GetContext(0))
}

func TestGetContext_Format(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddShortTerm("User: hello")
	m.AddShortTerm("Agent: hi")

	assert.Equal(t, "[09:01] User: hello\n[09:02] Agent: hi", m.GetContext(5))
}

func TestGetContext_TakesNewestInOrder(t *testing.T) {
	m := newTestManager(t, nil, 10)
	for i := 1; i <= 7; i++ {
		m.AddShortTerm(fmt.Sprintf("m%d", i))
	}

	assert.Equal(t, "[09:06] m6\n[09:07] m7", m.GetContext(2))
	assert.Equal(t, 5, len(splitLines(m.GetContext(DefaultContextLimit))))
	assert.Equal(t, 7, len(splitLines(m.GetContext(0))))
	assert.Equal(t, 7, len(splitLines(m.GetContext(50))))
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	return append(lines, s[start:])
}

func TestAccessorsReturnCopies(t *testing.T) {
	m := newTestManager(t, nil, 10)
	m.AddShortTerm("s")
	m.AddLongTerm("l")

	st := m.ShortTerm()
	st[0].Content = "mutated"
	lt := m.LongTerm()
	lt = append(lt, Item{Content: "extra"})

	assert.Equal(t, []string{"s"}, contents(m.ShortTerm()))
	assert.Equal(t, []string{"l"}, contents(m.LongTerm()))
	assert.Len(t, lt, 2)
}

func TestConcurrentAddsKeepInvariants(t *testing.T) {
	m := newTestManager(t, &recordingStore{}, 5)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				m.AddShortTerm(fmt.Sprintf("g%d-%d", g, i), WithImportance(1.0))
				_ = m.SearchMemory("g", 3)
				_ = m.GetContext(2)
			}
		}(g)
	}
	wg.Wait()

	stats := m.Stats()
	assert.Equal(t, 5, stats.ShortTerm)
	// every evicted item had importance 1.0, so all were promoted
	assert.Equal(t, 8*25-5, stats.LongTerm)
}

func TestRoundTripThroughJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")

	first := newTestManager(t, NewJSONFileStore(path), 1)
	first.AddLongTerm("binding site analysis", WithImportance(0.75), WithTags("site", "ligand"))
	first.AddShortTerm("promoted later", WithImportance(0.95))
	first.AddShortTerm("pushes it out", WithImportance(0.2))

	second := NewManager(Config{Store: NewJSONFileStore(path), Logger: zerolog.Nop()})

	want := first.LongTerm()
	got := second.LongTerm()
	require.Len(t, got, 2)
	for i := range want {
		assert.Equal(t, want[i].Content, got[i].Content)
		assert.Equal(t, want[i].Importance, got[i].Importance)
		assert.Equal(t, want[i].Tags, got[i].Tags)
		assert.Equal(t, want[i].Timestamp.Truncate(time.Second).Unix(), got[i].Timestamp.Truncate(time.Second).Unix())
	}
	assert.Empty(t, second.ShortTerm())
}

func TestCorruptFileDegradesToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"timestamp": "yesterday", "content": "x", "importance": 1, "tags": []}]`), 0644))

	m := NewManager(Config{Store: NewJSONFileStore(path), Logger: zerolog.Nop()})

	assert.Empty(t, m.LongTerm())
}
