package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/grafana/regexp"
)

var (
	ErrDuplicateChannel = errors.New("channel already tracked")
	ErrChannelNotFound  = errors.New("channel not found")
	ErrInvalidChannel   = errors.New("invalid channel name")
	ErrInvalidPriority  = errors.New("priority out of range")
)

var channelNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,25}$`)

// ValidateChannelName checks a login name against the service's naming rules
func ValidateChannelName(name string) error {
	if !channelNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, name)
	}
	return nil
}

// SortByPriority returns a copy of channels ordered by ascending priority.
// Ties fall back to insertion time so the order is deterministic.
func SortByPriority(channels []ChannelEntry) []ChannelEntry {
	sorted := make([]ChannelEntry, len(channels))
	copy(sorted, channels)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].AddedAt.Before(sorted[j].AddedAt)
	})
	return sorted
}

// NormalizePriorities sorts the list and renumbers it 1..N
func NormalizePriorities(channels []ChannelEntry) []ChannelEntry {
	sorted := SortByPriority(channels)
	for i := range sorted {
		sorted[i].Priority = i + 1
	}
	return sorted
}

// FindChannel returns the index of name in channels, or -1
func FindChannel(channels []ChannelEntry, name string) int {
	for i, ch := range channels {
		if strings.EqualFold(ch.Name, name) {
			return i
		}
	}
	return -1
}

// AddChannel appends name at the lowest priority
func AddChannel(channels []ChannelEntry, name string, now time.Time) ([]ChannelEntry, error) {
	name = strings.TrimSpace(name)
	if err := ValidateChannelName(name); err != nil {
		return channels, err
	}
	if FindChannel(channels, name) >= 0 {
		return channels, fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
	}

	list := NormalizePriorities(channels)
	list = append(list, ChannelEntry{
		Name:     name,
		Priority: len(list) + 1,
		AddedAt:  now,
	})
	return list, nil
}

// RemoveChannel drops name and closes the gap in priorities
func RemoveChannel(channels []ChannelEntry, name string) ([]ChannelEntry, error) {
	idx := FindChannel(channels, name)
	if idx < 0 {
		return channels, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}

	list := make([]ChannelEntry, 0, len(channels)-1)
	list = append(list, channels[:idx]...)
	list = append(list, channels[idx+1:]...)
	return NormalizePriorities(list), nil
}

// MoveChannel places name at priority and shifts the others around it
func MoveChannel(channels []ChannelEntry, name string, priority int) ([]ChannelEntry, error) {
	list := NormalizePriorities(channels)
	idx := FindChannel(list, name)
	if idx < 0 {
		return channels, fmt.Errorf("%w: %s", ErrChannelNotFound, name)
	}
	if priority < 1 || priority > len(list) {
		return channels, fmt.Errorf("%w: %d (have %d channels)", ErrInvalidPriority, priority, len(list))
	}

	moved := list[idx]
	list = append(list[:idx], list[idx+1:]...)

	target := priority - 1
	list = append(list, ChannelEntry{})
	copy(list[target+1:], list[target:])
	list[target] = moved

	for i := range list {
		list[i].Priority = i + 1
	}
	return list, nil
}

// ChannelNames returns the names of channels in priority order
func ChannelNames(channels []ChannelEntry) []string {
	sorted := SortByPriority(channels)
	names := make([]string, 0, len(sorted))
	for _, ch := range sorted {
		names = append(names, ch.Name)
	}
	return names
}
