// Package notification shows short message boxes to the user at the start
// and end of a batch.
package notification

import (
	"fmt"
	"log"
	"strings"
)

const maxBodyRunes = 600

// Summary formats the end-of-batch message.
func Summary(model string, total, saved, degraded, failed int, outputDir string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model: %s\n", model)
	fmt.Fprintf(&b, "Prompts: %d\nSaved: %d\n", total, saved)
	if degraded > 0 {
		fmt.Fprintf(&b, "Needs review: %d\n", degraded)
	}
	if failed > 0 {
		fmt.Fprintf(&b, "Failed: %d\n", failed)
	}
	fmt.Fprintf(&b, "\nOutput: %s", outputDir)
	return b.String()
}

// Show displays an informational message and waits for the user to close it.
func Show(title, message string) {
	message = truncate(message)
	log.Printf("Notification: %s: %s", title, strings.ReplaceAll(message, "\n", " | "))
	if err := showMessage(title, message, false); err != nil {
		log.Printf("Notification: %v", err)
	}
}

// ShowBlockingError displays an error and waits for the user to close it.
func ShowBlockingError(title, message string) {
	message = truncate(message)
	log.Printf("%s: %s", title, message)
	if err := showMessage(title, message, true); err != nil {
		log.Printf("Notification: %v", err)
	}
}

func truncate(s string) string {
	if r := []rune(s); len(r) > maxBodyRunes {
		return string(r[:maxBodyRunes]) + "..."
	}
	return s
}
