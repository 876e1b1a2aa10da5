// Package query is the read-only accessor layer exposed to unrelated
// external integrations. Resolving a token never blocks, never mutates
// state and never fails: missing match context yields documented defaults,
// an unknown token yields absent.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"ctf-tracker/internal/domain"
	"ctf-tracker/internal/game"
	"ctf-tracker/internal/progression"

	"github.com/rs/zerolog"
)

type Resolver struct {
	prog   *progression.Manager
	games  *game.Manager
	logger zerolog.Logger
}

func NewResolver(prog *progression.Manager, games *game.Manager, logger zerolog.Logger) *Resolver {
	return &Resolver{prog: prog, games: games, logger: logger}
}

// playerContext is one fully-defaulted view assembled per query, so the
// token switch never has to guard against a missing session.
type playerContext struct {
	record progression.View
	snap   game.Snapshot
	inGame bool
}

func (r *Resolver) contextFor(playerID string) playerContext {
	pctx := playerContext{record: r.prog.ViewOrZero(playerID)}

	if pctx.record.Bound {
		if snap, ok := r.games.ArenaSnapshot(pctx.record.Arena, time.Now()); ok {
			pctx.snap = snap
			pctx.inGame = true
		}
	}

	return pctx
}

// Resolve maps a query token to its display value for a player. The second
// return is false for unrecognized tokens, signaling "not handled" rather
// than an error.
func (r *Resolver) Resolve(token, playerID string) (string, bool) {
	pctx := r.contextFor(playerID)
	rec := pctx.record

	switch strings.ToLower(token) {
	case "level":
		return strconv.Itoa(rec.Level), true
	case "experience", "xp":
		return strconv.Itoa(rec.Experience), true
	case "xp_for_next_level", "xp_required":
		return strconv.Itoa(rec.XPForNextLevel()), true
	case "xp_progress":
		return formatPercent(rec.XPProgress()), true

	case "kills", "session_kills":
		return strconv.Itoa(rec.Kills), true
	case "deaths", "session_deaths":
		return strconv.Itoa(rec.Deaths), true
	case "captures", "session_captures":
		return strconv.Itoa(rec.Captures), true
	case "returns", "session_returns":
		return strconv.Itoa(rec.FlagReturns), true
	case "session_kd":
		return formatRatio(rec.KDRatio()), true

	case "total_kills":
		return strconv.Itoa(rec.TotalKills), true
	case "total_deaths":
		return strconv.Itoa(rec.TotalDeaths), true
	case "total_captures":
		return strconv.Itoa(rec.TotalCaptures), true
	case "total_returns":
		return strconv.Itoa(rec.TotalReturns), true
	case "total_kd":
		return formatRatio(rec.TotalKDRatio()), true
	case "games_played":
		return strconv.Itoa(rec.GamesPlayed), true
	case "games_won":
		return strconv.Itoa(rec.GamesWon), true
	case "win_rate":
		return formatPercent(rec.WinRate()), true

	case "in_game":
		return strconv.FormatBool(pctx.inGame), true
	case "team":
		if !pctx.inGame {
			return "none", true
		}
		return rec.Team.String(), true
	case "team_color":
		if !pctx.inGame {
			return "none", true
		}
		return rec.Team.Hex(), true
	case "has_flag", "carrying_flag":
		return strconv.FormatBool(pctx.inGame && rec.Carrying), true

	case "arena":
		if !pctx.inGame {
			return "none", true
		}
		return pctx.snap.Name, true
	case "arena_state":
		if !pctx.inGame {
			return "none", true
		}
		return pctx.snap.Phase.String(), true
	case "arena_players":
		return strconv.Itoa(pctx.snap.Players), true
	case "red_score":
		return strconv.Itoa(pctx.snap.Score[domain.TeamRed]), true
	case "blue_score":
		return strconv.Itoa(pctx.snap.Score[domain.TeamBlue]), true
	case "red_kills":
		return strconv.Itoa(pctx.snap.TeamKills[domain.TeamRed]), true
	case "blue_kills":
		return strconv.Itoa(pctx.snap.TeamKills[domain.TeamBlue]), true
	case "time_left":
		if !pctx.inGame {
			return "00:00", true
		}
		return pctx.snap.Clock(), true

	default:
		r.logger.Debug().Str("token", token).Msg("unrecognized query token")
		return "", false
	}
}

// formatPercent renders a [0,1] fraction as a percentage with one decimal.
func formatPercent(fraction float64) string {
	return fmt.Sprintf("%.1f", fraction*100)
}

func formatRatio(ratio float64) string {
	return fmt.Sprintf("%.2f", ratio)
}
