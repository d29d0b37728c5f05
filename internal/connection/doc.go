// Package connection implements the connection runtime: the uniform
// Connection lifecycle surface, the shared BaseConnection harness, the
// type registry, and the manager that multiplexes one live transport per
// connection id across any number of subscribers.
//
// Concrete transports live in the subpackages (mqtt, socketio, natsconn);
// each registers a Descriptor so configurations resolve by type id. The
// manager namespaces input ids per subscriber, which is what lets two
// pipelines share a broker connection while reconfiguring their own
// subscriptions independently.
//
// DecodePayload is the shared wire-to-leaf decoder: JSON objects flatten
// into one data point per scalar, with the {value, timestamp} two-key
// object recognised as a timestamped leaf.
package connection
