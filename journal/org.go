package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatEntryOrg renders an Entry as an Org-mode block with the structured
// facts in a PROPERTIES drawer.
func FormatEntryOrg(e Entry) string {
	result := "REJECTED"
	if e.Accepted {
		result = "ACCEPTED"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s %s (%s)\n", result, e.Operation, e.Target, shortID(e.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", e.ID)
	fmt.Fprintf(&b, ":TIME: %s\n", e.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":USER: %s\n", e.UserID)
	fmt.Fprintf(&b, ":ACCOUNT: %s\n", e.AccountID)
	fmt.Fprintf(&b, ":OPERATION: %s\n", e.Operation)
	fmt.Fprintf(&b, ":TARGET: %s\n", e.Target)
	fmt.Fprintf(&b, ":STATUS: %s\n", e.Status)
	fmt.Fprintf(&b, ":HTTP_STATUS: %d\n", e.HTTPStatus)
	fmt.Fprintf(&b, ":ATTEMPTS: %d\n", e.Attempts)
	b.WriteString(":END:\n")
	if e.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Message)
	}
	return b.String()
}

// FormatEntriesOrg renders multiple entries separated by blank lines.
func FormatEntriesOrg(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatEntryOrg(e))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
