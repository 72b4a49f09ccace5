// Package watcher drives one site's scan folder through the routing
// pipeline.
//
// A Watcher observes the site's in folder with filesystem notifications plus
// a periodic rescan, waits for new files to stop growing, then claims each
// file by renaming it into the processing folder. The rename is the only
// claim mechanism: when notification and rescan race on the same filename,
// exactly one rename succeeds and the loser skips the file silently. Claimed
// files flow through decode, identifier extraction, material resolution, and
// spooler dispatch, then receive an audit record and a terminal move into
// done or error. A failed terminal move leaves the file in processing and is
// raised as a stall alarm; processing is never rescanned automatically.
package watcher
