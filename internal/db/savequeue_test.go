package db

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueSave_CoalescesLaterRequests(t *testing.T) {
	q := NewSaveQueue()
	var calls atomic.Int32
	q.Register(SaveRules, func(context.Context) error {
		calls.Add(1)
		return nil
	})

	q.QueSave(SaveRules, 50*time.Millisecond)
	first, ok := q.Pending(SaveRules)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		q.QueSave(SaveRules, time.Hour)
	}
	again, _ := q.Pending(SaveRules)
	assert.Equal(t, first, again)

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	_, ok = q.Pending(SaveRules)
	assert.False(t, ok)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestQueSave_EarlierRequestPullsForward(t *testing.T) {
	q := NewSaveQueue()
	done := make(chan struct{}, 2)
	q.Register(SaveAuth, func(context.Context) error {
		done <- struct{}{}
		return nil
	})

	q.QueSave(SaveAuth, time.Hour)
	q.QueSave(SaveAuth, 20*time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush was not pulled forward")
	}
	select {
	case <-done:
		t.Fatal("superseded flush ran")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFlushAll(t *testing.T) {
	q := NewSaveQueue()
	var rulesCalls, configCalls atomic.Int32
	q.Register(SaveRules, func(context.Context) error {
		rulesCalls.Add(1)
		return nil
	})
	q.Register(SaveConfig, func(context.Context) error {
		configCalls.Add(1)
		return errors.New("disk full")
	})
	q.QueSave(SaveRules, time.Hour)

	err := q.FlushAll(context.Background())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, int32(1), rulesCalls.Load())
	assert.Equal(t, int32(1), configCalls.Load())
	_, ok := q.Pending(SaveRules)
	assert.False(t, ok)
}
