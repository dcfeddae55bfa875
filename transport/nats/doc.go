// Package nats publishes finished game results to NATS so other services
// (leaderboards, analytics) can react without polling the game API.
//
// Results go to <prefix>.<outcome>, where outcome is "win" or "lose".
// The Nats-Msg-Id header is "<session>:<status>" so JetStream streams
// listening on the subjects deduplicate redeliveries.
package nats
