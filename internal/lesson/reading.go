package lesson

import (
	"fmt"

	"github.com/example/go-lesson-audio/internal/text"
)

// FillReadings returns a copy of items where every empty Reading is
// generated by r. Readings supplied by the caller are kept. A nil r returns
// items unchanged.
func FillReadings(items []Item, r text.Reader) ([]Item, error) {
	if r == nil {
		return items, nil
	}
	out := append([]Item(nil), items...)
	for i := range out {
		if out[i].Reading != "" {
			continue
		}
		reading, err := r.Reading(out[i].Text)
		if err != nil {
			return nil, fmt.Errorf("reading for item %d: %w", i, err)
		}
		out[i].Reading = reading
	}
	return out, nil
}
