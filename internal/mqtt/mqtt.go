// Package mqtt publishes machine snapshots to an MQTT broker, with an
// abstraction for testing.
package mqtt

import "fmt"

// TopicPrefix is the root of every machine's data topic.
const TopicPrefix = "data/"

// Topic returns the data topic for a machine name, e.g. "data/machine2".
func Topic(machine string) string {
	return TopicPrefix + machine
}

// MachineName returns the name used in topics and paths for a machine id.
func MachineName(id int) string {
	return fmt.Sprintf("machine%d", id)
}

// Publisher publishes snapshot payloads.
type Publisher interface {
	// Publish sends a payload to the machine topic.
	// Returns error if publishing fails (should not crash the process).
	Publish(payload string) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}
