package pool

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMap_PreservesOrder(t *testing.T) {
	items := make([]int, 100)
	for i := range items {
		items[i] = i
	}
	want := make([]string, 100)
	for i := range want {
		want[i] = strconv.Itoa(i * 2)
	}
	for _, workers := range []int{1, 3, 7, 100, 200} {
		got, err := Map(context.Background(), workers, items, func(batch []int) []string {
			out := make([]string, len(batch))
			for i, v := range batch {
				out[i] = strconv.Itoa(v * 2)
			}
			return out
		})
		if err != nil {
			t.Fatalf("Map(workers=%d) err = %v, want nil", workers, err)
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Errorf("Map(workers=%d) diff (-got, +want):\n%s", workers, diff)
		}
	}
}

func TestMap_DefaultWorkers(t *testing.T) {
	got, err := Map(context.Background(), 0, []int{1, 2, 3}, func(batch []int) []int {
		return batch
	})
	if err != nil {
		t.Fatalf("Map() err = %v, want nil", err)
	}
	if diff := cmp.Diff(got, []int{1, 2, 3}); diff != "" {
		t.Errorf("Map() diff (-got, +want):\n%s", diff)
	}
}

func TestMap_Empty(t *testing.T) {
	got, err := Map(context.Background(), 4, nil, func(batch []int) []int {
		t.Error("fn called for empty input")
		return nil
	})
	if err != nil {
		t.Fatalf("Map() err = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("Map() = %v, want nil", got)
	}
}

func TestMap_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Map(ctx, 4, []int{1, 2, 3}, func(batch []int) []int {
		return batch
	})
	if err != context.Canceled {
		t.Errorf("Map() err = %v, want context.Canceled", err)
	}
}
