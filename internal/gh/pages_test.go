// internal/gh/pages_test.go
package gh

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedFake serves fixed page sizes in order and counts calls.
func pagedFake(sizes []int) (pageFetch[int], *int) {
	calls := new(int)
	next := 0
	return func(ctx context.Context, page int) ([]int, error) {
		*calls++
		size := 0
		if page-1 < len(sizes) {
			size = sizes[page-1]
		}
		items := make([]int, size)
		for i := range items {
			items[i] = next
			next++
		}
		return items, nil
	}, calls
}

func TestCollectPages_StopsOnShortPage(t *testing.T) {
	fetch, calls := pagedFake([]int{100, 100, 37})

	items, err := collectPages(context.Background(), 100, 0, fetch)

	require.NoError(t, err)
	assert.Len(t, items, 237)
	assert.Equal(t, 3, *calls)
}

func TestCollectPages_StopsOnEmptyPage(t *testing.T) {
	fetch, calls := pagedFake([]int{100, 100, 100, 0})

	items, err := collectPages(context.Background(), 100, 0, fetch)

	require.NoError(t, err)
	assert.Len(t, items, 300)
	assert.Equal(t, 4, *calls)
}

func TestCollectPages_PreservesOrder(t *testing.T) {
	fetch, _ := pagedFake([]int{100, 3})

	items, err := collectPages(context.Background(), 100, 0, fetch)

	require.NoError(t, err)
	require.Len(t, items, 103)
	for i, v := range items {
		assert.Equal(t, i, v)
	}
}

func TestCollectPages_CapTrimsAndStops(t *testing.T) {
	// An endlessly full upstream; only the cap terminates the walk.
	fetch, calls := pagedFake([]int{100, 100, 100, 100, 100})

	items, err := collectPages(context.Background(), 100, 250, fetch)

	require.NoError(t, err)
	assert.Len(t, items, 250)
	assert.Equal(t, 3, *calls)
}

func TestCollectPages_SingleShortPage(t *testing.T) {
	fetch, calls := pagedFake([]int{12})

	items, err := collectPages(context.Background(), 100, 0, fetch)

	require.NoError(t, err)
	assert.Len(t, items, 12)
	assert.Equal(t, 1, *calls)
}

func TestCollectPages_PageErrorAbortsCollection(t *testing.T) {
	pageErr := errors.New("upstream unavailable")
	calls := 0
	fetch := func(ctx context.Context, page int) ([]int, error) {
		calls++
		if page == 2 {
			return nil, pageErr
		}
		return make([]int, 100), nil
	}

	items, err := collectPages(context.Background(), 100, 0, fetch)

	require.ErrorIs(t, err, pageErr)
	assert.Nil(t, items)
	assert.Equal(t, 2, calls)
}
