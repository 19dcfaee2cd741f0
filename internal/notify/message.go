package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/AhmedBakrXI/GeoMap/internal/session"
)

// FormatReadyMessage creates the body sent once the backfill has completed.
func FormatReadyMessage(st session.State, elapsed time.Duration) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session: %s\n", st.SessionID))
	sb.WriteString(fmt.Sprintf("Points: %d\n", st.Points))
	sb.WriteString(fmt.Sprintf("Pages: %d\n", st.TotalPages))
	sb.WriteString(fmt.Sprintf("Snapshot max id: %d\n", st.SnapshotMaxID))
	if st.LatestTime != "" {
		sb.WriteString(fmt.Sprintf("Last: %s\n", st.LatestTime))
	}
	sb.WriteString(fmt.Sprintf("Duration: %s", elapsed.Round(time.Millisecond)))

	return sb.String()
}

// FormatFailureMessage creates the body sent when a session ends in error.
func FormatFailureMessage(st session.State, attempt int, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Session: %s\n", st.SessionID))
	sb.WriteString(fmt.Sprintf("Attempt: %d\n", attempt))
	if st.Error != "" {
		sb.WriteString(fmt.Sprintf("Status: %s\n", st.Error))
	}
	if st.TotalPages > 0 {
		sb.WriteString(fmt.Sprintf("Progress: page %d of %d (%d%%)\n", st.Page, st.TotalPages, st.Percent()))
	}
	sb.WriteString(fmt.Sprintf("Points: %d", st.Points))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	return sb.String()
}
