package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/jobwars/internal/stats"
	"github.com/cory-johannsen/jobwars/internal/storage/postgres"
	"github.com/cory-johannsen/jobwars/internal/testutil"
)

func setupMatchRepo(t *testing.T) *postgres.MatchRepository {
	t.Helper()
	pc := testutil.NewPostgresContainer(t)
	pc.ApplyMigrations(t)
	return postgres.NewMatchRepository(pc.RawPool)
}

func uniqueID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func match(p1, p2 string, winner *string, start, end int64, deck1, deck2 string) stats.Match {
	return stats.Match{
		Player1ID:   p1,
		Player1Name: "name-" + p1,
		Player2ID:   p2,
		Player2Name: "name-" + p2,
		WinnerID:    winner,
		StartTime:   start,
		EndTime:     end,
		TurnCount:   12,
		Deck1ID:     deck1,
		Deck2ID:     deck2,
	}
}

func TestMatchRepository(t *testing.T) {
	repo := setupMatchRepo(t)
	ctx := context.Background()

	t.Run("record and read back", func(t *testing.T) {
		p1, p2 := uniqueID("alice"), uniqueID("bob")
		id, err := repo.RecordMatch(ctx, match(p1, p2, &p1, 1_000, 61_000, "startup", "corp"))
		require.NoError(t, err)
		assert.Positive(t, id)

		alice, err := repo.PlayerStats(ctx, p1)
		require.NoError(t, err)
		assert.Equal(t, 1, alice.TotalGames)
		assert.Equal(t, 1, alice.Wins)
		assert.InDelta(t, 100.0, alice.WinRate, 1e-9)
		assert.InDelta(t, 60_000.0, alice.AvgGameDuration, 1e-9)
		require.NotNil(t, alice.FavoriteDeck)
		assert.Equal(t, "startup", *alice.FavoriteDeck)

		bob, err := repo.PlayerStats(ctx, p2)
		require.NoError(t, err)
		assert.Equal(t, 1, bob.Losses)
		require.NotNil(t, bob.FavoriteDeck)
		assert.Equal(t, "corp", *bob.FavoriteDeck)

		history, err := repo.PlayerMatches(ctx, p2, stats.PlayerMatchesLimit)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, id, history[0].ID)
		require.NotNil(t, history[0].WinnerID)
		assert.Equal(t, p1, *history[0].WinnerID)
	})

	t.Run("draw counts for both", func(t *testing.T) {
		p1, p2 := uniqueID("carol"), uniqueID("dave")
		_, err := repo.RecordMatch(ctx, match(p1, p2, nil, 0, 10, "a", "b"))
		require.NoError(t, err)

		for _, id := range []string{p1, p2} {
			ps, err := repo.PlayerStats(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, 1, ps.Draws)
			assert.Zero(t, ps.WinRate)
		}
	})

	t.Run("unknown player", func(t *testing.T) {
		_, err := repo.PlayerStats(ctx, uniqueID("ghost"))
		assert.ErrorIs(t, err, stats.ErrPlayerNotFound)
	})

	t.Run("leaderboard requires three games", func(t *testing.T) {
		veteran, rookie := uniqueID("vet"), uniqueID("rookie")
		for i := 0; i < 3; i++ {
			_, err := repo.RecordMatch(ctx, match(veteran, rookie+fmt.Sprint(i), &veteran, 0, 100, "x", "y"))
			require.NoError(t, err)
		}

		board, err := repo.Leaderboard(ctx, stats.LeaderboardSize)
		require.NoError(t, err)
		var ids []string
		for _, ps := range board {
			ids = append(ids, ps.PlayerID)
			assert.GreaterOrEqual(t, ps.TotalGames, stats.LeaderboardMinGame)
		}
		assert.Contains(t, ids, veteran)
		assert.NotContains(t, ids, rookie+"0")
	})

	t.Run("recent matches newest first", func(t *testing.T) {
		p1, p2 := uniqueID("eve"), uniqueID("frank")
		_, err := repo.RecordMatch(ctx, match(p1, p2, nil, 0, 9_000_000_000_000, "a", "b"))
		require.NoError(t, err)

		recent, err := repo.RecentMatches(ctx, stats.RecentMatchesLimit)
		require.NoError(t, err)
		require.NotEmpty(t, recent)
		assert.LessOrEqual(t, len(recent), stats.RecentMatchesLimit)
		assert.Equal(t, p1, recent[0].Player1ID)
		for i := 1; i < len(recent); i++ {
			assert.GreaterOrEqual(t, recent[i-1].EndTime, recent[i].EndTime)
		}
	})

	t.Run("totals", func(t *testing.T) {
		totals, err := repo.Totals(ctx)
		require.NoError(t, err)
		assert.Positive(t, totals.TotalMatches)
		assert.Positive(t, totals.TotalPlayers)
		assert.Positive(t, totals.AvgMatchDuration)
	})
}
