package node

import "fmt"

// Redis key pattern helpers
//
// All keys and Pub/Sub channels are namespaced by instance name so several
// nodes can share one Redis server.
//
// Key pattern: stash:{instance_name}:{entity}:{id}
// Channel pattern: stash:{instance_name}:{event_type}_events

// EntryKey returns the Redis key for a log entry.
// Pattern: stash:{instance_name}:entry:{hash}
func EntryKey(instanceName, hash string) string {
	return fmt.Sprintf("stash:%s:entry:%s", instanceName, hash)
}

// AuthorSeqKey returns the Redis key for an author's sequence counter.
// Pattern: stash:{instance_name}:author:{public_key}:seq
func AuthorSeqKey(instanceName, publicKey string) string {
	return fmt.Sprintf("stash:%s:author:%s:seq", instanceName, publicKey)
}

// LogStreamKey returns the Redis stream holding the total order of entries.
// Pattern: stash:{instance_name}:log
func LogStreamKey(instanceName string) string {
	return fmt.Sprintf("stash:%s:log", instanceName)
}

// EntryEventsChannel returns the Pub/Sub channel announcing new entries.
// Pattern: stash:{instance_name}:entry_events
func EntryEventsChannel(instanceName string) string {
	return fmt.Sprintf("stash:%s:entry_events", instanceName)
}
