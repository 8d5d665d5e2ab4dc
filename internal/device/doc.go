// Package device talks to Tasmota devices over their plain HTTP command
// API. One capability interface covers firmware queries, upgrade triggers
// and liveness probes; it is implemented by a real HTTP client and by a
// simulated stand-in that never touches the network.
package device
