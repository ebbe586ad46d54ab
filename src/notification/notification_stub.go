//go:build !windows

package notification

// showMessage only logs outside Windows; Show and ShowBlockingError already
// wrote the message to the log.
func showMessage(title, message string, isError bool) error {
	return nil
}
