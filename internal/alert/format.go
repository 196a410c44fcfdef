package alert

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/estatehub/sentinel/internal/models"
)

// BlockText describes an automatic block.
func BlockText(actorID string, count int, window time.Duration, disableErr error) string {
	var b strings.Builder
	if disableErr != nil {
		fmt.Fprintf(&b, ":warning: Sentinel attempted to disable actor %s after %d security incidents in %s.", actorID, count, window)
		fmt.Fprintf(&b, " Identity service call failed: %v. Manual follow-up required.", disableErr)
		return b.String()
	}
	fmt.Fprintf(&b, ":lock: Sentinel disabled actor %s after %d security incidents in %s.", actorID, count, window)
	return b.String()
}

// PriorityText describes a critical event that did not reach the block threshold.
func PriorityText(ev *models.LogEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: %s event for actor %s: %s", ev.Priority, ev.ActorID, ev.Action)
	if ev.Message != "" {
		fmt.Fprintf(&b, "\n%s", ev.Message)
	}
	if len(ev.Metadata) > 0 {
		keys := make([]string, 0, len(ev.Metadata))
		for k := range ev.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n  %s: %v", k, ev.Metadata[k])
		}
	}
	fmt.Fprintf(&b, "\n(event %s at %s)", ev.ID, ev.CreatedAt.UTC().Format(time.RFC3339))
	return b.String()
}
