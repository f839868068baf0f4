// Package presence turns a sample Outcome into the status tag and text shown
// on the presence display.
package presence

import (
	"slices"
	"strconv"
	"strings"

	"github.com/9-FS/minecraft-server-status/internal/sampler"
	"github.com/9-FS/minecraft-server-status/internal/target"
)

// Status is the coarse presence tag.
type Status int

const (
	// Online means the server answered the last sample.
	Online Status = iota
	// Unavailable means the last sample failed.
	Unavailable
)

func (s Status) String() string {
	switch s {
	case Online:
		return "online"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Update is one presence change handed to the sinks.
type Update struct {
	Status Status
	Text   string
}

// Format renders o for t. It is a pure function: identical inputs give
// identical Updates and o.SampleNames is not modified.
//
// Online:   "{online}/{max}; {address}" plus ": {names}" when anyone is online.
// Failure:  "offline; IP: {address}". The failure reason is never shown.
func Format(t target.Target, o sampler.Outcome) Update {
	if !o.IsOnline() {
		return Update{Status: Unavailable, Text: "offline; IP: " + t.DisplayAddress()}
	}

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(o.PlayersOnline))
	sb.WriteByte('/')
	sb.WriteString(strconv.Itoa(o.PlayersMax))
	sb.WriteString("; ")
	sb.WriteString(t.DisplayAddress())
	if o.PlayersOnline >= 1 {
		// Servers may hide names, so the suffix can be just ": ".
		sb.WriteString(": ")
		sb.WriteString(strings.Join(SortNames(o.SampleNames), ","))
	}
	return Update{Status: Online, Text: sb.String()}
}

// SortNames returns a copy of names ordered case-insensitively. Names that
// compare equal ignoring case keep their original order.
func SortNames(names []string) []string {
	sorted := slices.Clone(names)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return sorted
}
