// Package logging provides the slog front-end shared by the daemon and CLI:
// a console handler for operators watching the process, a JSON handler for
// log shippers, and the standardized field names used across the pipeline.
package logging
