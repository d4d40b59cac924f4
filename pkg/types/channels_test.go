package types

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertDensePriorities(t *testing.T, channels []ChannelEntry) {
	t.Helper()
	priorities := make([]int, 0, len(channels))
	for _, ch := range channels {
		priorities = append(priorities, ch.Priority)
	}
	sort.Ints(priorities)
	for i, p := range priorities {
		assert.Equal(t, i+1, p, "priorities must be a dense 1..N sequence: %v", priorities)
	}
}

func buildList(t *testing.T, names ...string) []ChannelEntry {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var list []ChannelEntry
	var err error
	for i, name := range names {
		list, err = AddChannel(list, name, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	return list
}

func TestAddChannel(t *testing.T) {
	tests := []struct {
		name    string
		initial []string
		add     string
		wantErr error
		wantLen int
	}{
		{name: "first channel", add: "alpha", wantLen: 1},
		{name: "appends at lowest priority", initial: []string{"alpha", "beta"}, add: "gamma", wantLen: 3},
		{name: "duplicate rejected", initial: []string{"alpha"}, add: "alpha", wantErr: ErrDuplicateChannel, wantLen: 1},
		{name: "duplicate case-insensitive", initial: []string{"Alpha"}, add: "ALPHA", wantErr: ErrDuplicateChannel, wantLen: 1},
		{name: "invalid characters", add: "bad name!", wantErr: ErrInvalidChannel},
		{name: "empty name", add: "", wantErr: ErrInvalidChannel},
		{name: "too long", add: "abcdefghijklmnopqrstuvwxyz", wantErr: ErrInvalidChannel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := buildList(t, tt.initial...)
			got, err := AddChannel(list, tt.add, time.Now())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				last := got[len(got)-1]
				assert.Equal(t, tt.add, last.Name)
				assert.Equal(t, len(got), last.Priority)
			}
			assert.Len(t, got, tt.wantLen)
			assertDensePriorities(t, got)
		})
	}
}

func TestRemoveChannel(t *testing.T) {
	list := buildList(t, "a", "b", "c", "d")

	got, err := RemoveChannel(list, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, ChannelNames(got))
	assertDensePriorities(t, got)

	_, err = RemoveChannel(got, "zzz")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestMoveChannel(t *testing.T) {
	tests := []struct {
		name     string
		channel  string
		priority int
		want     []string
		wantErr  error
	}{
		{name: "move last to first", channel: "d", priority: 1, want: []string{"d", "a", "b", "c"}},
		{name: "move first to last", channel: "a", priority: 4, want: []string{"b", "c", "d", "a"}},
		{name: "move into middle", channel: "d", priority: 2, want: []string{"a", "d", "b", "c"}},
		{name: "same position", channel: "b", priority: 2, want: []string{"a", "b", "c", "d"}},
		{name: "priority zero", channel: "a", priority: 0, wantErr: ErrInvalidPriority},
		{name: "priority past end", channel: "a", priority: 5, wantErr: ErrInvalidPriority},
		{name: "unknown channel", channel: "x", priority: 1, wantErr: ErrChannelNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := buildList(t, "a", "b", "c", "d")
			got, err := MoveChannel(list, tt.channel, tt.priority)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ChannelNames(got))
			assertDensePriorities(t, got)
		})
	}
}

func TestPriorityInvariantUnderRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	var list []ChannelEntry
	next := 0

	for step := 0; step < 500; step++ {
		var err error
		switch op := rng.Intn(3); {
		case op == 0 || len(list) == 0:
			list, err = AddChannel(list, fmt.Sprintf("ch_%d", next), time.Now())
			next++
		case op == 1:
			victim := list[rng.Intn(len(list))].Name
			list, err = RemoveChannel(list, victim)
		default:
			mover := list[rng.Intn(len(list))].Name
			list, err = MoveChannel(list, mover, rng.Intn(len(list))+1)
		}
		require.NoError(t, err)
		assertDensePriorities(t, list)
	}
}

func TestNormalizePrioritiesRepairsGaps(t *testing.T) {
	list := []ChannelEntry{
		{Name: "c", Priority: 9},
		{Name: "a", Priority: 2},
		{Name: "b", Priority: 5},
	}

	got := NormalizePriorities(list)
	assert.Equal(t, []string{"a", "b", "c"}, ChannelNames(got))
	assertDensePriorities(t, got)
	// input untouched
	assert.Equal(t, 9, list[0].Priority)
}
