package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type hallList struct {
	ids []int64
	err error
}

func (h hallList) EnabledHallIDs(context.Context) ([]int64, error) { return h.ids, h.err }

func TestParseSignal(t *testing.T) {
	tests := []struct {
		payload string
		id      string
		status  bool
		ok      bool
	}{
		{"7:on", "7", true, true},
		{"7:off", "7", false, true},
		{"12:true", "12", true, true},
		{"12:false", "12", false, true},
		{"7:maybe", "", false, false},
		{":on", "", false, false},
		{"7:", "", false, false},
		{"garbage", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			id, status, ok := ParseSignal(tt.payload)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestHallManagerInitWithoutRedis(t *testing.T) {
	hm := NewHallManager(nil, hallList{ids: []int64{3, 5}}, zap.NewNop())
	require.NoError(t, hm.Init(context.Background()))

	assert.True(t, hm.IsEnabled(3))
	assert.True(t, hm.IsEnabled(5))
	assert.False(t, hm.IsEnabled(4))
	assert.NoError(t, hm.Publish(context.Background(), 3, false), "publish is a no-op without redis")
}

func TestHallManagerInitError(t *testing.T) {
	hm := NewHallManager(nil, hallList{err: errors.New("db down")}, zap.NewNop())
	assert.ErrorContains(t, hm.Init(context.Background()), "db down")
}

func TestHallManagerSignals(t *testing.T) {
	hm := NewHallManager(nil, nil, zap.NewNop())
	hm.onSignal("9", true)
	assert.True(t, hm.IsEnabled(9))
	hm.onSignal("9", false)
	assert.False(t, hm.IsEnabled(9))

	hm.onSignal("nine", true)
	assert.False(t, hm.IsEnabled(9))
}

func TestDiffHallSets(t *testing.T) {
	d := diffHallSets([]int64{4, 2, 9}, []string{"2", "7", "abc", "0", "9"})
	assert.Equal(t, []int64{4}, d.missing)
	assert.Equal(t, []string{"7"}, d.stale)
	assert.Equal(t, []string{"0", "abc"}, d.malformed)
	assert.False(t, d.empty())

	assert.True(t, diffHallSets([]int64{1}, []string{"1"}).empty())
	assert.Equal(t, []int64{1, 3}, diffHallSets([]int64{3, 1}, nil).missing)
}
