package cursor

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/feedgrid/feedgrid/internal/errors"
)

// slotData builds a deterministic sharded dataset: slot -> ordered keys
func slotData(counts map[int64]int) map[int64][]string {
	data := make(map[int64][]string)
	for slot, n := range counts {
		keys := make([]string, 0, n)
		for i := 0; i < n; i++ {
			keys = append(keys, fmt.Sprintf("s%02d-item%03d", slot, i))
		}
		sort.Strings(keys)
		data[slot] = keys
	}
	return data
}

func fetcher(data map[int64][]string) SlotFetch[string] {
	return func(_ context.Context, slot int64, after string, limit int) ([]string, error) {
		keys := data[slot]
		var out []string
		for _, k := range keys {
			if after != "" && k <= after {
				continue
			}
			out = append(out, k)
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}
}

func reverseFetcher(data map[int64][]string) SlotFetch[string] {
	return func(_ context.Context, slot int64, after string, limit int) ([]string, error) {
		keys := data[slot]
		var out []string
		for i := len(keys) - 1; i >= 0; i-- {
			k := keys[i]
			if after != "" && k >= after {
				continue
			}
			out = append(out, k)
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}
}

func ident(s string) string { return s }

func collectAll(t *testing.T, dir Direction, pageSize int, slots SlotRange, start int64, fetch SlotFetch[string]) []string {
	t.Helper()
	ctx := context.Background()
	var all []string
	cursor := ""
	for i := 0; i < 1000; i++ {
		page, err := PaginateSlots(ctx, Request{Cursor: cursor, PageSize: pageSize, Direction: dir},
			slots, start, ident, fetch)
		if err != nil {
			t.Fatalf("pagination failed: %v", err)
		}
		if len(page.Items) > pageSize {
			t.Fatalf("page exceeds page size: %d", len(page.Items))
		}
		all = append(all, page.Items...)
		if !page.HasMore() {
			return all
		}
		cursor = page.NextCursor
		// Resume from the slot owning the cursor: in these tests the slot is
		// encoded in the key prefix
		var slot int64
		fmt.Sscanf(cursor, "s%02d-", &slot)
		start = slot
	}
	t.Fatal("pagination did not terminate")
	return nil
}

func TestPaginateSlots_RoundTripNext(t *testing.T) {
	data := slotData(map[int64]int{1: 7, 2: 0, 3: 13, 4: 2})
	slots := SlotRange{First: 1, Last: 4}

	var want []string
	for slot := int64(1); slot <= 4; slot++ {
		want = append(want, data[slot]...)
	}

	for _, pageSize := range []int{1, 3, 5, 7, 25} {
		got := collectAll(t, DirectionNext, pageSize, slots, slots.First, fetcher(data))
		if len(got) != len(want) {
			t.Fatalf("pageSize %d: got %d items, want %d", pageSize, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("pageSize %d: item %d = %s, want %s (gap or duplicate)", pageSize, i, got[i], want[i])
			}
		}
	}
}

func TestPaginateSlots_RoundTripPrevious(t *testing.T) {
	data := slotData(map[int64]int{1: 4, 2: 9, 3: 1})
	slots := SlotRange{First: 1, Last: 3}

	var forward []string
	for slot := int64(1); slot <= 3; slot++ {
		forward = append(forward, data[slot]...)
	}

	got := collectAll(t, DirectionPrevious, 4, slots, slots.Last, reverseFetcher(data))

	if len(got) != len(forward) {
		t.Fatalf("got %d items, want %d", len(got), len(forward))
	}
	for i := range got {
		want := forward[len(forward)-1-i]
		if got[i] != want {
			t.Fatalf("item %d = %s, want %s", i, got[i], want)
		}
	}
}

func TestPaginateSlots_EmptyDataset(t *testing.T) {
	page, err := PaginateSlots(context.Background(),
		Request{PageSize: 10, Direction: DirectionNext},
		SlotRange{First: 1, Last: 3}, 1, ident, fetcher(map[int64][]string{}))
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 0 {
		t.Errorf("expected empty page, got %d items", len(page.Items))
	}
	if page.HasMore() {
		t.Error("expected no next cursor on empty dataset")
	}
}

func TestPaginateSlots_ExactPageEndsWithEmptyFollowup(t *testing.T) {
	// Dataset size equals page size: the first page may hand back a cursor
	// (later slots could hold data), the follow-up page must be empty with
	// no cursor
	data := slotData(map[int64]int{1: 5, 2: 0})
	slots := SlotRange{First: 1, Last: 2}
	ctx := context.Background()

	page, err := PaginateSlots(ctx, Request{PageSize: 5, Direction: DirectionNext}, slots, 1, ident, fetcher(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 5 {
		t.Fatalf("expected full page, got %d", len(page.Items))
	}
	if !page.HasMore() {
		return // walked into slot 2 and found it empty; also correct
	}

	followup, err := PaginateSlots(ctx, Request{Cursor: page.NextCursor, PageSize: 5, Direction: DirectionNext},
		slots, 1, ident, fetcher(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(followup.Items) != 0 || followup.HasMore() {
		t.Errorf("expected terminal empty page, got %d items cursor=%q", len(followup.Items), followup.NextCursor)
	}
}

func TestPaginateSlots_InvalidRequests(t *testing.T) {
	ctx := context.Background()
	data := fetcher(map[int64][]string{})

	_, err := PaginateSlots(ctx, Request{PageSize: 0, Direction: DirectionNext},
		SlotRange{First: 1, Last: 1}, 1, ident, data)
	if !errors.HasCode(err, errors.CodeInvalidArguments) {
		t.Errorf("expected invalid_arguments, got %v", err)
	}

	_, err = PaginateSlots(ctx, Request{PageSize: 5, Direction: "SIDEWAYS"},
		SlotRange{First: 1, Last: 1}, 1, ident, data)
	if !errors.HasCode(err, errors.CodeNotSupported) {
		t.Errorf("expected not_supported, got %v", err)
	}

	_, err = PaginateSlots(ctx, Request{PageSize: 5, Direction: DirectionNext},
		SlotRange{First: 1, Last: 3}, 9, ident, data)
	if !errors.HasCode(err, errors.CodeInvalidCursor) {
		t.Errorf("expected invalid_cursor for out-of-range slot, got %v", err)
	}
}

func TestPaginate_SinglePartition(t *testing.T) {
	keys := []string{"a", "b", "c", "d", "e", "f", "g"}
	fetch := func(_ context.Context, after string, limit int) ([]string, error) {
		var out []string
		for _, k := range keys {
			if after != "" && k <= after {
				continue
			}
			out = append(out, k)
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}

	ctx := context.Background()
	var all []string
	cursor := ""
	for {
		page, err := Paginate(ctx, Request{Cursor: cursor, PageSize: 3, Direction: DirectionNext}, ident, fetch)
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, page.Items...)
		if !page.HasMore() {
			break
		}
		cursor = page.NextCursor
	}

	if len(all) != len(keys) {
		t.Fatalf("got %d items, want %d", len(all), len(keys))
	}
	for i := range keys {
		if all[i] != keys[i] {
			t.Errorf("item %d = %s, want %s", i, all[i], keys[i])
		}
	}
}

func TestPaginateSlots_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := PaginateSlots(ctx, Request{PageSize: 5, Direction: DirectionNext},
		SlotRange{First: 1, Last: 1}, 1, ident, fetcher(map[int64][]string{1: {"a"}}))
	if err == nil {
		t.Error("expected error from cancelled context")
	}
}
