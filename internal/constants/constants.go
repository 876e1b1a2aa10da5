package constants

import "time"

const (
	// Minimum players on every team before a waiting match can start.
	DefaultMinPlayersPerTeam = 1
	// Captures needed to end a match early.
	DefaultWinThreshold = 3

	DefaultCountdown     = 30 * time.Second
	DefaultMatchDuration = 10 * time.Minute
	DefaultEndingDisplay = 10 * time.Second
)

const (
	XPPerKill    = 15
	XPPerCapture = 100
	XPPerReturn  = 25
	XPPerWin     = 150
)

const (
	// SessionTickInterval drives phase deadline checks.
	SessionTickInterval = 1 * time.Second
	// FlushInterval is how often dirty progression records are written out.
	FlushInterval = 30 * time.Second
)

const (
	DatabaseTimeout = 5 * time.Second
	WebhookTimeout  = 10 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)
