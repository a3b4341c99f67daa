package telegram

import (
	"testing"

	"github.com/mymmrac/telego"
)

// TestNextOffsetAfterBatch checks that after a batch carrying update_id 5
// and 7, next_offset becomes 8.
func TestNextOffsetAfterBatch(t *testing.T) {
	batch := []telego.Update{{UpdateID: 5}, {UpdateID: 7}}
	if got := nextOffsetAfter(0, batch); got != 8 {
		t.Errorf("nextOffsetAfter(0, batch) = %d, want 8", got)
	}
}

func TestNextOffsetAfterEmptyBatchLeavesOffsetUnchanged(t *testing.T) {
	if got := nextOffsetAfter(8, nil); got != 8 {
		t.Errorf("nextOffsetAfter(8, nil) = %d, want 8 (unchanged)", got)
	}
}

func TestNextOffsetAfterOutOfOrderUpdateIDs(t *testing.T) {
	batch := []telego.Update{{UpdateID: 9}, {UpdateID: 3}, {UpdateID: 6}}
	if got := nextOffsetAfter(0, batch); got != 10 {
		t.Errorf("nextOffsetAfter with out-of-order ids = %d, want 10", got)
	}
}
