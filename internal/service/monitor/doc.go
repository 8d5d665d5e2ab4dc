// Package monitor watches device telemetry over MQTT: availability,
// periodic state reports and firmware version answers.
package monitor
