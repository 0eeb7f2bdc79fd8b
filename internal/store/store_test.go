package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	s, err := NewWithDB(mock)
	require.NoError(t, err)
	return s, mock
}

func TestCreateLandDefaultsLanguage(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO land").
		WithArgs("asthme", "qualité de l'air", "fr").
		WillReturnRows(pgxmock.NewRows(
			[]string{"id", "name", "description", "lang", "created_at"}).
			AddRow(int64(1), "asthme", "qualité de l'air", "fr", now))

	land, err := s.CreateLand(context.Background(), "asthme", "qualité de l'air", "")
	require.NoError(t, err)
	require.Equal(t, int64(1), land.ID)
	require.Equal(t, "fr", land.Lang)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLandDuplicateIsConflict(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO land").
		WithArgs("asthme", "", "fr").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := s.CreateLand(context.Background(), "asthme", "", "fr")
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLandNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, description, lang, created_at FROM land").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetLand(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddWordIfAbsentReselectsOnConflict(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO word").
		WithArgs("asthmatique", "asthmat").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT id, term, lemma FROM word").
		WithArgs("asthmatique").
		WillReturnRows(pgxmock.NewRows([]string{"id", "term", "lemma"}).
			AddRow(int64(7), "asthmatique", "asthmat"))

	word, err := s.AddWordIfAbsent(context.Background(), "asthmatique", "asthmat")
	require.NoError(t, err)
	require.Equal(t, int64(7), word.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expressionRows(id int64, url string, depth int, created time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "land_id", "domain_id", "url", "http_status", "lang", "title",
		"description", "keywords", "author", "readable", "relevance", "depth",
		"published_at", "created_at", "fetched_at", "approved_at", "readable_at",
	}).AddRow(id, int64(1), int64(2), url, "", "", "", "", "", "", "",
		0, depth, nil, created, nil, nil, nil)
}

func TestUpsertExpressionCreates(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO expression").
		WithArgs(int64(1), int64(2), "https://example.org/a", 0).
		WillReturnRows(expressionRows(10, "https://example.org/a", 0, now))

	e, created, err := s.UpsertExpression(context.Background(), 1, 2, "https://example.org/a", 0)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, int64(10), e.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertExpressionLowersDepth(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO expression").
		WithArgs(int64(1), int64(2), "https://example.org/a", 1).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM expression WHERE url").
		WithArgs("https://example.org/a").
		WillReturnRows(expressionRows(10, "https://example.org/a", 2, now))
	mock.ExpectExec("UPDATE expression SET depth").
		WithArgs(int64(10), 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	e, created, err := s.UpsertExpression(context.Background(), 1, 2, "https://example.org/a", 1)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 1, e.Depth)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertExpressionNeverRaisesDepth(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("INSERT INTO expression").
		WithArgs(int64(1), int64(2), "https://example.org/a", 3).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM expression WHERE url").
		WithArgs("https://example.org/a").
		WillReturnRows(expressionRows(10, "https://example.org/a", 1, now))

	e, created, err := s.UpsertExpression(context.Background(), 1, 2, "https://example.org/a", 3)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, 1, e.Depth)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddLink(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO expression_link").
		WithArgs(int64(10), int64(11)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.AddLink(context.Background(), 10, 11))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMediaEncodesPalettes(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	now := time.Unix(1700000000, 0).UTC()

	m := Media{
		ID:          5,
		Width:       640,
		Height:      480,
		FileSize:    12345,
		Format:      "jpeg",
		ColorMode:   "RGB",
		AspectRatio: 1.3333,
		DominantColors: []DominantColor{{
			RGB: [3]int{200, 10, 10}, Hex: "#c80a0a", Name: "red", Percentage: 61.5,
		}},
		WebsafeColors: map[string]float64{"#cc0000": 61.5},
		ImageHash:     "p:8f373714acfcf4d0",
		AnalyzedAt:    &now,
	}

	mock.ExpectExec("UPDATE media SET").
		WithArgs(m.ID, m.Width, m.Height, m.FileSize, m.Format, m.ColorMode,
			m.AspectRatio, m.HasTransparency,
			[]byte(`[{"rgb":[200,10,10],"hex":"#c80a0a","hsv":[0,0,0],"name":"red","percentage":61.5}]`),
			[]byte(`{"#cc0000":61.5}`),
			[]byte(nil),
			m.ImageHash, []byte(nil), m.NSFWScore, m.AnalyzedAt, m.AnalysisError).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.SaveMedia(context.Background(), m))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteLandMissing(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM land").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteLand(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
