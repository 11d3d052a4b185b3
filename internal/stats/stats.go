// Package stats holds the match history records shared by the session hub,
// the PostgreSQL store and the HTTP API.
package stats

import "errors"

// ErrPlayerNotFound is returned when no statistics exist for a player id.
var ErrPlayerNotFound = errors.New("player not found")

// Leaderboard and history limits used by the HTTP API.
const (
	LeaderboardSize    = 10
	LeaderboardMinGame = 3
	RecentMatchesLimit = 20
	PlayerMatchesLimit = 10
)

// Match is one completed game. Times are unix milliseconds.
type Match struct {
	ID          int64   `json:"id"`
	Player1ID   string  `json:"player1_id"`
	Player1Name string  `json:"player1_name"`
	Player2ID   string  `json:"player2_id"`
	Player2Name string  `json:"player2_name"`
	WinnerID    *string `json:"winner_id"`
	StartTime   int64   `json:"start_time"`
	EndTime     int64   `json:"end_time"`
	TurnCount   int     `json:"turn_count"`
	Deck1ID     string  `json:"deck1_id"`
	Deck2ID     string  `json:"deck2_id"`
}

// Duration returns the match length in milliseconds.
func (m Match) Duration() int64 { return m.EndTime - m.StartTime }

// Outcome is a single player's result in m: 1 for a win, -1 for a loss and
// 0 for a draw.
func (m Match) Outcome(playerID string) int {
	switch {
	case m.WinnerID == nil:
		return 0
	case *m.WinnerID == playerID:
		return 1
	default:
		return -1
	}
}

// PlayerStats aggregates a player's history. WinRate is a percentage and
// AvgGameDuration is in milliseconds.
type PlayerStats struct {
	PlayerID        string  `json:"player_id"`
	PlayerName      string  `json:"player_name"`
	TotalGames      int     `json:"total_games"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	Draws           int     `json:"draws"`
	WinRate         float64 `json:"win_rate"`
	AvgGameDuration float64 `json:"avg_game_duration"`
	FavoriteDeck    *string `json:"favorite_deck"`
}

// WinRatePercent computes the win percentage for the given counters.
func WinRatePercent(wins, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(wins) / float64(total) * 100
}

// Totals summarizes the whole history.
type Totals struct {
	TotalMatches     int64   `json:"totalMatches"`
	TotalPlayers     int64   `json:"totalPlayers"`
	AvgMatchDuration float64 `json:"avgMatchDuration"`
}
