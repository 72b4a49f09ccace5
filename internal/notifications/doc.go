// Package notifications delivers routing events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Event categories (errors, stalls, lifecycle) can be toggled
// individually so a noisy site does not drown out the alerts that need a
// human, such as a file stuck in a processing folder.
//
// Extend this package if you need alternative transports; routing code
// depends only on the simple Service interface.
package notifications
