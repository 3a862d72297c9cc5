//go:build noprom

package metrics

// Built with -tags noprom: the recorder stays a no-op and no exporter is started.
func enablePrometheus(string) error { return nil }
