package biz_test

import (
	"context"
	"testing"
	"time"

	"github.com/mhilgert/docdepot/internal/depot/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterTimeSpan(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want biz.TimeSpan
	}{
		{"single day", 90000 * time.Second, biz.TimeSpan{Value: 1, Unit: "Tag"}},
		{"multiple days", 3 * 24 * time.Hour, biz.TimeSpan{Value: 3, Unit: "Tage"}},
		{"single hour", 3700 * time.Second, biz.TimeSpan{Value: 1, Unit: "Stunde"}},
		{"multiple hours", 7300 * time.Second, biz.TimeSpan{Value: 2, Unit: "Stunden"}},
		{"single minute", 61 * time.Second, biz.TimeSpan{Value: 1, Unit: "Minute"}},
		{"multiple minutes", 150 * time.Second, biz.TimeSpan{Value: 2, Unit: "Minuten"}},
		{"seconds", 45 * time.Second, biz.TimeSpan{Value: 45, Unit: "Sekunden"}},
		{"zero", 0, biz.TimeSpan{Value: 0, Unit: "Sekunden"}},
		{"exact day boundary", 24 * time.Hour, biz.TimeSpan{Value: 1, Unit: "Tag"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, biz.ClusterTimeSpan(tt.d))
		})
	}
}

func TestAverageTimeForUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// No documents at all.
	_, ok, err := e.analytics.AverageTimeForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	// A document without events does not count.
	e.addDocument(t, "u1", uniqueBody())
	_, ok, err = e.analytics.AverageTimeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	// A viewed document yields a positive mean.
	_, token := e.addDocument(t, "u1", uniqueBody())
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, e.lifecycle.AddEvent(ctx, token.Token, ""))

	mean, ok, err := e.analytics.AverageTimeForUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Greater(t, mean, time.Duration(0))
}

func TestAverageTimeForAllUsers_SkipsUsersWithoutEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, token := e.addDocument(t, "active", uniqueBody())
	e.addDocument(t, "silent", uniqueBody())
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, e.lifecycle.AddEvent(ctx, token.Token, ""))

	averages, err := e.analytics.AverageTimeForAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, averages, 1)
	assert.Equal(t, "active", averages[0].UID)
	assert.Equal(t, "Sekunden", averages[0].Span.Unit)
}

func TestAverageTimeForToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, token := e.addDocument(t, "u1", uniqueBody())
	time.Sleep(1100 * time.Millisecond)
	require.NoError(t, e.lifecycle.AddEvent(ctx, token.Token, ""))

	span, ok, err := e.analytics.AverageTimeForToken(ctx, token.Token)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Sekunden", span.Unit)

	_, _, err = e.analytics.AverageTimeForToken(ctx, "missing")
	assert.ErrorIs(t, err, biz.ErrTokenNotFound)
}
