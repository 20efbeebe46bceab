package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// keyTimeLayout formats window bounds at minute granularity.  Two requests
// targeting the same slot with different sub-minute timestamps must derive
// the same key, so seconds and below are truncated away.
const keyTimeLayout = "200601021504"

// keyPrefix namespaces all slot keys in the shared lock and queue backends.
const keyPrefix = "resv"

// Window identifies a reservation target: one zone and one half-open
// [start, end) time range.  It is the unit over which arbitration is
// serialized – the lock coordinator and the waiting queue are both sharded
// by the key derived from it.  The key always uses the requested start and
// end, never arrival time.
type Window struct {
	ZoneID uint64    // zone being targeted
	Start  time.Time // inclusive start, truncated to the minute in the key
	End    time.Time // exclusive end, truncated to the minute in the key
}

// NewWindow builds a Window with both bounds normalized to UTC.
func NewWindow(zoneID uint64, start, end time.Time) Window {
	return Window{ZoneID: zoneID, Start: start.UTC(), End: end.UTC()}
}

// Key returns the deterministic string used to shard the lock namespace and
// the waiting queue, e.g. "resv:42:202501011000-202501011100".
func (w Window) Key() string {
	return fmt.Sprintf("%s:%d:%s-%s",
		keyPrefix, w.ZoneID,
		w.Start.UTC().Truncate(time.Minute).Format(keyTimeLayout),
		w.End.UTC().Truncate(time.Minute).Format(keyTimeLayout))
}

// ZoneKeyPrefix returns the key prefix shared by every window of a zone.
// The waiting queue uses it to enumerate a zone's queues.
func ZoneKeyPrefix(zoneID uint64) string {
	return fmt.Sprintf("%s:%d:", keyPrefix, zoneID)
}

// ParseWindowKey reverses Key.  The returned window carries minute
// precision only, which is all the queue and lock layers ever need.
func ParseWindowKey(key string) (Window, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 3 || parts[0] != keyPrefix {
		return Window{}, fmt.Errorf("malformed window key %q", key)
	}
	zoneID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Window{}, fmt.Errorf("malformed zone id in key %q: %w", key, err)
	}
	bounds := strings.SplitN(parts[2], "-", 2)
	if len(bounds) != 2 {
		return Window{}, fmt.Errorf("malformed range in key %q", key)
	}
	start, err := time.ParseInLocation(keyTimeLayout, bounds[0], time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("malformed start in key %q: %w", key, err)
	}
	end, err := time.ParseInLocation(keyTimeLayout, bounds[1], time.UTC)
	if err != nil {
		return Window{}, fmt.Errorf("malformed end in key %q: %w", key, err)
	}
	return Window{ZoneID: zoneID, Start: start, End: end}, nil
}

// Overlaps reports whether two half-open ranges intersect:
// a.start < b.end && b.start < a.end.  Windows on different zones never
// overlap.
func (w Window) Overlaps(o Window) bool {
	if w.ZoneID != o.ZoneID {
		return false
	}
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}
