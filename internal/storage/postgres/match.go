package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/jobwars/internal/stats"
)

const matchColumns = `id, player1_id, player1_name, player2_id, player2_name,
	winner_id, start_time, end_time, turn_count, deck1_id, deck2_id`

// MatchRepository records completed games and serves the aggregated
// statistics behind the HTTP API.
type MatchRepository struct {
	db *pgxpool.Pool
}

// NewMatchRepository creates a MatchRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewMatchRepository(db *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{db: db}
}

// RecordMatch inserts m and folds its outcome into both players' counters in
// a single transaction.
//
// Precondition: m.Player1ID and m.Player2ID must be non-empty and distinct.
// Postcondition: Returns the new match id, or an error with nothing written.
func (r *MatchRepository) RecordMatch(ctx context.Context, m stats.Match) (int64, error) {
	var id int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO matches (
				player1_id, player1_name, player2_id, player2_name,
				winner_id, start_time, end_time, turn_count, deck1_id, deck2_id
			 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING id`,
			m.Player1ID, m.Player1Name, m.Player2ID, m.Player2Name,
			m.WinnerID, m.StartTime, m.EndTime, m.TurnCount, m.Deck1ID, m.Deck2ID,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting match: %w", err)
		}
		if err := upsertPlayer(ctx, tx, m.Player1ID, m.Player1Name, m.Outcome(m.Player1ID), m.TurnCount); err != nil {
			return err
		}
		return upsertPlayer(ctx, tx, m.Player2ID, m.Player2Name, m.Outcome(m.Player2ID), m.TurnCount)
	})
	if err != nil {
		return 0, fmt.Errorf("recording match: %w", err)
	}
	return id, nil
}

func upsertPlayer(ctx context.Context, tx pgx.Tx, id, name string, outcome, turns int) error {
	var win, loss, draw int
	switch outcome {
	case 1:
		win = 1
	case -1:
		loss = 1
	default:
		draw = 1
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO players (player_id, player_name, total_games, wins, losses, draws, total_turns, last_seen)
		 VALUES ($1, $2, 1, $3, $4, $5, $6, NOW())
		 ON CONFLICT (player_id) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			total_games = players.total_games + 1,
			wins        = players.wins + EXCLUDED.wins,
			losses      = players.losses + EXCLUDED.losses,
			draws       = players.draws + EXCLUDED.draws,
			total_turns = players.total_turns + EXCLUDED.total_turns,
			last_seen   = EXCLUDED.last_seen`,
		id, name, win, loss, draw, turns,
	)
	if err != nil {
		return fmt.Errorf("upserting player %s: %w", id, err)
	}
	return nil
}

// RecentMatches returns up to limit matches, most recently finished first.
//
// Precondition: limit must be positive.
func (r *MatchRepository) RecentMatches(ctx context.Context, limit int) ([]stats.Match, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY end_time DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying recent matches: %w", err)
	}
	return collectMatches(rows)
}

// PlayerMatches returns up to limit of one player's matches, newest first.
//
// Precondition: limit must be positive.
func (r *MatchRepository) PlayerMatches(ctx context.Context, playerID string, limit int) ([]stats.Match, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE player1_id = $1 OR player2_id = $1
		 ORDER BY end_time DESC, id DESC LIMIT $2`,
		playerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying matches for %s: %w", playerID, err)
	}
	return collectMatches(rows)
}

func collectMatches(rows pgx.Rows) ([]stats.Match, error) {
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stats.Match, error) {
		var m stats.Match
		err := row.Scan(
			&m.ID, &m.Player1ID, &m.Player1Name, &m.Player2ID, &m.Player2Name,
			&m.WinnerID, &m.StartTime, &m.EndTime, &m.TurnCount, &m.Deck1ID, &m.Deck2ID,
		)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning matches: %w", err)
	}
	return matches, nil
}

// PlayerStats returns the aggregated statistics for one player.
//
// Postcondition: Returns stats.ErrPlayerNotFound if the player never finished a match.
func (r *MatchRepository) PlayerStats(ctx context.Context, playerID string) (stats.PlayerStats, error) {
	var ps stats.PlayerStats
	err := r.db.QueryRow(ctx,
		`SELECT player_id, player_name, total_games, wins, losses, draws
		 FROM players WHERE player_id = $1`,
		playerID,
	).Scan(&ps.PlayerID, &ps.PlayerName, &ps.TotalGames, &ps.Wins, &ps.Losses, &ps.Draws)
	if errors.Is(err, pgx.ErrNoRows) {
		return stats.PlayerStats{}, stats.ErrPlayerNotFound
	}
	if err != nil {
		return stats.PlayerStats{}, fmt.Errorf("querying player %s: %w", playerID, err)
	}
	ps.WinRate = stats.WinRatePercent(ps.Wins, ps.TotalGames)

	err = r.db.QueryRow(ctx,
		`SELECT COALESCE(AVG(end_time - start_time), 0)::float8
		 FROM matches WHERE player1_id = $1 OR player2_id = $1`,
		playerID,
	).Scan(&ps.AvgGameDuration)
	if err != nil {
		return stats.PlayerStats{}, fmt.Errorf("averaging durations for %s: %w", playerID, err)
	}

	var deck string
	err = r.db.QueryRow(ctx,
		`SELECT deck FROM (
			SELECT deck1_id AS deck FROM matches WHERE player1_id = $1
			UNION ALL
			SELECT deck2_id AS deck FROM matches WHERE player2_id = $1
		 ) d
		 GROUP BY deck ORDER BY COUNT(*) DESC, deck LIMIT 1`,
		playerID,
	).Scan(&deck)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return stats.PlayerStats{}, fmt.Errorf("finding favorite deck for %s: %w", playerID, err)
	default:
		ps.FavoriteDeck = &deck
	}
	return ps, nil
}

// Leaderboard returns up to limit players with at least stats.LeaderboardMinGame
// games, ordered by wins then win rate.
//
// Precondition: limit must be positive.
func (r *MatchRepository) Leaderboard(ctx context.Context, limit int) ([]stats.PlayerStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT player_id, player_name, total_games, wins, losses, draws
		 FROM players
		 WHERE total_games >= $1
		 ORDER BY wins DESC, wins::float8 / total_games DESC, player_id
		 LIMIT $2`,
		stats.LeaderboardMinGame, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying leaderboard: %w", err)
	}
	board, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (stats.PlayerStats, error) {
		var ps stats.PlayerStats
		if err := row.Scan(&ps.PlayerID, &ps.PlayerName, &ps.TotalGames, &ps.Wins, &ps.Losses, &ps.Draws); err != nil {
			return ps, err
		}
		ps.WinRate = stats.WinRatePercent(ps.Wins, ps.TotalGames)
		return ps, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning leaderboard: %w", err)
	}
	return board, nil
}

// Totals summarizes the whole match history.
func (r *MatchRepository) Totals(ctx context.Context) (stats.Totals, error) {
	var t stats.Totals
	err := r.db.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM matches),
			(SELECT COUNT(*) FROM players),
			(SELECT COALESCE(AVG(end_time - start_time), 0)::float8 FROM matches)`,
	).Scan(&t.TotalMatches, &t.TotalPlayers, &t.AvgMatchDuration)
	if err != nil {
		return stats.Totals{}, fmt.Errorf("querying totals: %w", err)
	}
	return t, nil
}
