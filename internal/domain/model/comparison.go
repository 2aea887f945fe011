package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FlagReasonTestSession marks comparisons recorded by test sessions.
// Publishability counting excludes them.
const FlagReasonTestSession = "test_session"

// Comparison is one recorded vote. Once stored it is an append-only fact:
// nothing updates or deletes it.
type Comparison struct {
	ID             string // unique id for idempotency
	ItemAID        string
	ItemBID        string
	WinnerID       string // one of ItemAID or ItemBID
	LeftItemID     string
	RightItemID    string
	CategoryID     string
	SessionID      string
	ResponseTimeMs int
	IsFlagged      bool
	FlagReason     string
	RecordedAt     time.Time
}

// LoserID returns the non-winning side of the pair.
func (c Comparison) LoserID() string {
	if c.WinnerID == c.ItemAID {
		return c.ItemBID
	}
	return c.ItemAID
}

// IsTestSession reports whether this comparison is excluded from
// publishability counting.
func (c Comparison) IsTestSession() bool {
	return c.IsFlagged && c.FlagReason == FlagReasonTestSession
}

// Validate checks the structural integrity of a comparison fact.
func (c Comparison) Validate() error {
	switch {
	case c.ItemAID == "" || c.ItemBID == "":
		return fmt.Errorf("%w: empty item id", ErrInvalidComparison)
	case c.ItemAID == c.ItemBID:
		return fmt.Errorf("%w: item %q compared against itself", ErrInvalidComparison, c.ItemAID)
	case c.WinnerID != c.ItemAID && c.WinnerID != c.ItemBID:
		return fmt.Errorf("%w: winner %q not in pair", ErrInvalidComparison, c.WinnerID)
	}
	if c.LeftItemID != "" || c.RightItemID != "" {
		ab := c.LeftItemID == c.ItemAID && c.RightItemID == c.ItemBID
		ba := c.LeftItemID == c.ItemBID && c.RightItemID == c.ItemAID
		if !ab && !ba {
			return fmt.Errorf("%w: left/right assignment does not match the pair", ErrInvalidComparison)
		}
	}
	return nil
}

// PairKey returns the canonical key for an unordered pair of item IDs.
func (c Comparison) PairKey() string {
	return PairKey(c.ItemAID, c.ItemBID)
}

// PairKey returns the canonical key for an unordered pair of item IDs.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// GroupKey returns the canonical key for an unordered set of item IDs.
func GroupKey(ids ...string) string {
	s := make([]string, len(ids))
	copy(s, ids)
	sort.Strings(s)
	return strings.Join(s, "|")
}
