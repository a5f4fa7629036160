package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleep_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}

func TestSleep_Elapses(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))
}

func TestFake_NextPaging(t *testing.T) {
	ctx := context.Background()
	f := NewFake(FakeOptions{Pages: [][]Listing{
		{{ID: "1", Name: "One"}},
		{{ID: "2", Name: "Two"}, {ID: "3", Name: "Three"}},
	}})
	require.NoError(t, f.Search(ctx, "chips"))

	n, err := f.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := f.Next(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	n, _ = f.Count(ctx)
	assert.Equal(t, 2, n)

	c, err := f.Candidate(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Three", c.Name)

	ok, _ = f.Next(ctx)
	assert.False(t, ok)

	_, err = f.Candidate(ctx, 5)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestFake_ScrollPagingAndProbes(t *testing.T) {
	ctx := context.Background()
	f := NewFake(FakeOptions{
		Paging: PagingScroll,
		Pages: [][]Listing{
			{{ID: "1", Name: "One", TelHref: "tel:9845012345", Reference: "https://m/1"}},
			{{ID: "2", Name: "Two"}},
		},
	})
	require.NoError(t, f.Search(ctx, "chips"))
	require.NoError(t, f.Scroll(ctx))
	n, _ := f.Count(ctx)
	assert.Equal(t, 2, n)

	c, _ := f.Candidate(ctx, 0)
	require.NoError(t, f.Open(ctx, c))
	v, ok := f.Probe(ctx, ProbeTelLink)
	assert.True(t, ok)
	assert.Equal(t, "tel:9845012345", v)
	_, ok = f.Probe(ctx, ProbeAddressControl)
	assert.False(t, ok)
	assert.Equal(t, "https://m/1", f.CurrentReference(ctx))
}

func TestFake_EmptyCountsAndSearchFailures(t *testing.T) {
	ctx := context.Background()
	f := NewFake(FakeOptions{
		Pages:          [][]Listing{{{ID: "1"}}},
		EmptyCounts:    2,
		SearchFailures: 1,
	})
	require.Error(t, f.Search(ctx, "q"))
	require.NoError(t, f.Search(ctx, "q"))

	for _, want := range []int{0, 0, 1} {
		n, err := f.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	assert.Equal(t, "https://fake.local/search/q", f.CurrentReference(ctx))
}
