package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ctf-tracker/internal/cosmetics"
	"ctf-tracker/internal/domain"
	"ctf-tracker/internal/game"
	"ctf-tracker/internal/middleware"
	"ctf-tracker/internal/progression"
	"ctf-tracker/internal/query"
	"ctf-tracker/internal/repository"

	"github.com/rs/zerolog"
)

const recentMatchLimit = 20

// Handler is the HTTP surface: the query facade for external integrations,
// the event ingestion endpoint for game-event producers and read-only
// arena/player/cosmetic views.
type Handler struct {
	resolver  *query.Resolver
	games     *game.Manager
	prog      *progression.Manager
	cosmetics *cosmetics.Service
	history   *repository.ProgressionRepository
	logger    zerolog.Logger
}

func New(
	resolver *query.Resolver,
	games *game.Manager,
	prog *progression.Manager,
	cosmeticsSvc *cosmetics.Service,
	history *repository.ProgressionRepository,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		resolver:  resolver,
		games:     games,
		prog:      prog,
		cosmetics: cosmeticsSvc,
		history:   history,
		logger:    logger,
	}
}

func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/placeholder", h.handlePlaceholder)
	mux.HandleFunc("POST /api/v1/events", h.handleEvent)
	mux.HandleFunc("POST /api/v1/arenas", h.handleActivateArena)
	mux.HandleFunc("GET /api/v1/arenas", h.handleListArenas)
	mux.HandleFunc("GET /api/v1/arenas/{name}", h.handleGetArena)
	mux.HandleFunc("DELETE /api/v1/arenas/{name}", h.handleStopArena)
	mux.HandleFunc("GET /api/v1/players/{id}", h.handleGetPlayer)
	mux.HandleFunc("GET /api/v1/players/{id}/cosmetics", h.handleGetCosmetics)

	return mux
}

func (h *Handler) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	playerID := r.URL.Query().Get("player")
	if token == "" || playerID == "" {
		writeError(w, http.StatusBadRequest, "token and player are required")
		return
	}

	value, ok := h.resolver.Resolve(token, playerID)
	if !ok {
		writeError(w, http.StatusNotFound, "unrecognized token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"value": value})
}

type eventRequest struct {
	Type     string `json:"type"`
	Arena    string `json:"arena"`
	Player   string `json:"player,omitempty"`
	Victim   string `json:"victim,omitempty"`
	Team     string `json:"team,omitempty"`
	FlagTeam string `json:"flag_team,omitempty"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed event body")
		return
	}

	event, err := h.toEvent(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.games.Dispatch(r.Context(), event); err != nil {
		h.logger.Debug().Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("type", req.Type).
			Str("arena", req.Arena).
			Msg("event rejected")
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "applied"})
}

func (h *Handler) toEvent(req eventRequest) (game.Event, error) {
	event := game.Event{
		Type:   game.EventType(req.Type),
		Arena:  req.Arena,
		Player: req.Player,
		Victim: req.Victim,
	}

	switch event.Type {
	case game.EventPlayerJoin, game.EventPlayerLeave, game.EventKill,
		game.EventFlagPickup, game.EventFlagDrop, game.EventFlagReturn,
		game.EventCapture, game.EventForceStart, game.EventStop:
	default:
		return game.Event{}, errors.New("unknown event type: " + req.Type)
	}

	if req.Team != "" {
		team, err := domain.ParseTeamColor(req.Team)
		if err != nil {
			return game.Event{}, err
		}
		event.Team = team
	}
	if req.FlagTeam != "" {
		team, err := domain.ParseTeamColor(req.FlagTeam)
		if err != nil {
			return game.Event{}, err
		}
		event.FlagTeam = team
	}

	return event, nil
}

type activateArenaRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleActivateArena(w http.ResponseWriter, r *http.Request) {
	var req activateArenaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	sess, err := h.games.ActivateArena(req.Name)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, toArenaResponse(sess.Snapshot(time.Now())))
}

func (h *Handler) handleListArenas(w http.ResponseWriter, r *http.Request) {
	snapshots := h.games.Snapshots(time.Now())

	arenas := make([]arenaResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		arenas = append(arenas, toArenaResponse(snap))
	}

	writeJSON(w, http.StatusOK, map[string]any{"arenas": arenas})
}

func (h *Handler) handleGetArena(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.games.ArenaSnapshot(r.PathValue("name"), time.Now())
	if !ok {
		writeError(w, http.StatusNotFound, "arena not found")
		return
	}

	writeJSON(w, http.StatusOK, toArenaResponse(snap))
}

func (h *Handler) handleStopArena(w http.ResponseWriter, r *http.Request) {
	if err := h.games.StopArena(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("id")
	view := h.prog.ViewOrZero(playerID)

	recent, err := h.history.RecentMatches(r.Context(), playerID, recentMatchLimit)
	if err != nil {
		h.logger.Warn().Err(err).Str("player_id", playerID).Msg("failed to load match history")
	}

	matches := make([]matchResponse, 0, len(recent))
	for _, m := range recent {
		matches = append(matches, matchResponse{
			Arena:    m.Arena,
			Team:     m.Team.String(),
			Kills:    m.Kills,
			Deaths:   m.Deaths,
			Captures: m.Captures,
			Returns:  m.Returns,
			Won:      m.Won,
			EndedAt:  m.EndedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, playerResponse{
		PlayerID:       view.PlayerID,
		Level:          view.Level,
		Experience:     view.Experience,
		XPForNextLevel: view.XPForNextLevel(),
		TotalKills:     view.TotalKills,
		TotalDeaths:    view.TotalDeaths,
		TotalCaptures:  view.TotalCaptures,
		TotalReturns:   view.TotalReturns,
		GamesPlayed:    view.GamesPlayed,
		GamesWon:       view.GamesWon,
		KDRatio:        view.TotalKDRatio(),
		WinRate:        view.WinRate(),
		InGame:         view.Bound,
		RecentMatches:  matches,
	})
}

func (h *Handler) handleGetCosmetics(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("id")

	catalog, err := h.cosmetics.AllCatalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	unlocked, err := h.cosmetics.UnlockedSet(r.Context(), playerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load owned cosmetics")
		return
	}
	completion, err := h.cosmetics.CompletionPercentage(r.Context(), playerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to compute completion")
		return
	}

	items := make([]cosmeticResponse, 0, len(catalog))
	for _, c := range catalog {
		items = append(items, cosmeticResponse{
			ID:       c.ID,
			Name:     c.Name,
			Rarity:   c.Rarity.String(),
			Unlocked: unlocked[c.ID],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"player_id":  playerID,
		"completion": completion,
		"cosmetics":  items,
	})
}

type arenaResponse struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	Players   int    `json:"players"`
	RedScore  int    `json:"red_score"`
	BlueScore int    `json:"blue_score"`
	RedKills  int    `json:"red_kills"`
	BlueKills int    `json:"blue_kills"`
	TimeLeft  string `json:"time_left"`
}

func toArenaResponse(snap game.Snapshot) arenaResponse {
	return arenaResponse{
		SessionID: snap.SessionID,
		Name:      snap.Name,
		State:     snap.Phase.String(),
		Players:   snap.Players,
		RedScore:  snap.Score[domain.TeamRed],
		BlueScore: snap.Score[domain.TeamBlue],
		RedKills:  snap.TeamKills[domain.TeamRed],
		BlueKills: snap.TeamKills[domain.TeamBlue],
		TimeLeft:  snap.Clock(),
	}
}

type playerResponse struct {
	PlayerID       string          `json:"player_id"`
	Level          int             `json:"level"`
	Experience     int             `json:"experience"`
	XPForNextLevel int             `json:"xp_for_next_level"`
	TotalKills     int             `json:"total_kills"`
	TotalDeaths    int             `json:"total_deaths"`
	TotalCaptures  int             `json:"total_captures"`
	TotalReturns   int             `json:"total_returns"`
	GamesPlayed    int             `json:"games_played"`
	GamesWon       int             `json:"games_won"`
	KDRatio        float64         `json:"kd_ratio"`
	WinRate        float64         `json:"win_rate"`
	InGame         bool            `json:"in_game"`
	RecentMatches  []matchResponse `json:"recent_matches"`
}

type matchResponse struct {
	Arena    string `json:"arena"`
	Team     string `json:"team"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
	Captures int    `json:"captures"`
	Returns  int    `json:"returns"`
	Won      bool   `json:"won"`
	EndedAt  string `json:"ended_at"`
}

type cosmeticResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rarity   string `json:"rarity"`
	Unlocked bool   `json:"unlocked"`
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrArenaNotFound), errors.Is(err, progression.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidState),
		errors.Is(err, game.ErrArenaExists),
		errors.Is(err, game.ErrSessionClosed),
		errors.Is(err, progression.ErrAlreadyBound),
		errors.Is(err, progression.ErrNotBound):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
