package memory

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultImportance is used when an item is added without an explicit score.
const DefaultImportance = 1.0

// Item is a single timestamped note. Items are not modified after creation.
type Item struct {
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"`
	Tags       []string  `json:"tags"`
}

// ItemOption configures an Item at creation.
type ItemOption func(*Item)

// WithImportance sets the importance score.
func WithImportance(importance float64) ItemOption {
	return func(it *Item) {
		it.Importance = importance
	}
}

// WithTags sets the tags, in order. Duplicates are kept.
func WithTags(tags ...string) ItemOption {
	return func(it *Item) {
		it.Tags = append([]string(nil), tags...)
	}
}

// NewItem creates an Item stamped with ts.
func NewItem(ts time.Time, content string, opts ...ItemOption) Item {
	it := Item{
		Timestamp:  ts,
		Content:    content,
		Importance: DefaultImportance,
	}
	for _, opt := range opts {
		opt(&it)
	}
	if it.Tags == nil {
		it.Tags = []string{}
	}
	return it
}

func (it Item) clone() Item {
	out := it
	out.Tags = append([]string{}, it.Tags...)
	return out
}

// timestampLayouts are accepted on load. The first is what Save writes; the
// others accept naive local timestamps such as "2025-03-01T14:05:09.123456".
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func formatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// MarshalJSON renders the persisted record shape.
func (it Item) MarshalJSON() ([]byte, error) {
	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(struct {
		Timestamp  string   `json:"timestamp"`
		Content    string   `json:"content"`
		Importance float64  `json:"importance"`
		Tags       []string `json:"tags"`
	}{
		Timestamp:  formatTimestamp(it.Timestamp),
		Content:    it.Content,
		Importance: it.Importance,
		Tags:       tags,
	})
}

// UnmarshalJSON requires all four record fields. A null tags value loads as
// an empty list.
func (it *Item) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, field := range []string{"timestamp", "content", "importance", "tags"} {
		if _, ok := raw[field]; !ok {
			return fmt.Errorf("missing field %q", field)
		}
	}

	var ts string
	if err := json.Unmarshal(raw["timestamp"], &ts); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := parseTimestamp(ts)
	if err != nil {
		return err
	}

	var out Item
	out.Timestamp = parsed
	if err := json.Unmarshal(raw["content"], &out.Content); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if err := json.Unmarshal(raw["importance"], &out.Importance); err != nil {
		return fmt.Errorf("importance: %w", err)
	}
	if err := json.Unmarshal(raw["tags"], &out.Tags); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	if out.Tags == nil {
		out.Tags = []string{}
	}

	*it = out
	return nil
}
