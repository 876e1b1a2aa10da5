package game

import "ctf-tracker/internal/domain"

// EventType enumerates the host-runtime events that drive a session.
type EventType string

const (
	EventPlayerJoin  EventType = "player_join"
	EventPlayerLeave EventType = "player_leave"
	EventKill        EventType = "kill"
	EventFlagPickup  EventType = "flag_pickup"
	EventFlagDrop    EventType = "flag_drop"
	EventFlagReturn  EventType = "flag_return"
	EventCapture     EventType = "capture"
	EventForceStart  EventType = "force_start"
	EventStop        EventType = "stop"
)

// Event is one causal game event. Each event counts exactly once; producers
// own at-most-once delivery per cause.
type Event struct {
	Type  EventType
	Arena string
	// Player is the acting player: joiner, killer, carrier, returner.
	Player string
	// Victim is set for kill events.
	Victim string
	// Team is the joining player's team.
	Team domain.TeamColor
	// FlagTeam selects the flag for pickup/drop/return events.
	FlagTeam domain.TeamColor
}

type envelope struct {
	event Event
	reply chan error
}
