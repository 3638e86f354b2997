package pager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNavigation(t *testing.T) {
	for _, token := range []string{"", "next", "back"} {
		nav, err := ParseNavigation(token)
		require.NoError(t, err)
		assert.Equal(t, Navigation(token), nav)
	}

	_, err := ParseNavigation("forward")
	assert.ErrorIs(t, err, ErrInvalidNavigation)
	_, err = ParseNavigation("NEXT")
	assert.ErrorIs(t, err, ErrInvalidNavigation)
}

func TestTotalPages(t *testing.T) {
	tests := []struct {
		n, pageSize, maxPages, want int
	}{
		{0, 1, 5, 0},
		{1, 1, 5, 1},
		{3, 1, 5, 3},
		{12, 1, 5, 5},
		{12, 5, 5, 3},
		{10, 5, 5, 2},
		{11, 5, 5, 3},
		{100, 10, 0, 10},
		{4, 0, 5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.n, tt.pageSize, tt.maxPages), "n=%d p=%d max=%d", tt.n, tt.pageSize, tt.maxPages)
	}
}

func TestPaginate_Walk(t *testing.T) {
	state := Paginate(3, 1, 5, 1, None)
	assert.Equal(t, State{CurrentPage: 1, TotalPages: 3, HasNext: true}, state)

	state = Paginate(3, 1, 5, state.CurrentPage, Next)
	assert.Equal(t, State{CurrentPage: 2, TotalPages: 3, HasNext: true, HasBack: true}, state)

	state = Paginate(3, 1, 5, state.CurrentPage, Next)
	assert.Equal(t, State{CurrentPage: 3, TotalPages: 3, HasBack: true}, state)

	// next at the last page is a no-op
	state = Paginate(3, 1, 5, state.CurrentPage, Next)
	assert.Equal(t, 3, state.CurrentPage)

	state = Paginate(3, 1, 5, 1, Back)
	assert.Equal(t, 1, state.CurrentPage)
	assert.False(t, state.HasBack)
}

func TestPaginate_ClampsStaleCurrent(t *testing.T) {
	// The set shrank from 5 pages to 2 since the cursor was issued.
	state := Paginate(2, 1, 5, 5, None)
	assert.Equal(t, 2, state.CurrentPage)
	assert.False(t, state.HasNext)

	state = Paginate(2, 1, 5, 5, Back)
	assert.Equal(t, 1, state.CurrentPage)

	state = Paginate(2, 1, 5, -3, Next)
	assert.Equal(t, 2, state.CurrentPage)
}

func TestPaginate_Empty(t *testing.T) {
	for _, nav := range []Navigation{None, Next, Back} {
		state := Paginate(0, 1, 5, 1, nav)
		assert.Equal(t, State{CurrentPage: 1}, state)
	}
}

func TestPaginate_MaxPagesCap(t *testing.T) {
	current := 1
	for range 10 {
		current = Paginate(40, 1, 5, current, Next).CurrentPage
	}
	assert.Equal(t, 5, current)
}

func TestSlice(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, []string{"a", "b"}, Slice(items, 2, 1))
	assert.Equal(t, []string{"c", "d"}, Slice(items, 2, 2))
	assert.Equal(t, []string{"e"}, Slice(items, 2, 3))
	assert.Empty(t, Slice(items, 2, 4))
	assert.Empty(t, Slice(items, 2, 0))
	assert.Empty(t, Slice([]string{}, 1, 1))
}
