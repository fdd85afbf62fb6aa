package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robik3456/tradebot/pkg/models"
)

type stubJournal struct {
	entries []models.LedgerEntry
}

func (j *stubJournal) Append(entry models.LedgerEntry) error {
	j.entries = append(j.entries, entry)
	return nil
}

func (j *stubJournal) Recent(n int) []models.LedgerEntry {
	return j.entries
}

func (j *stubJournal) Close() error { return nil }

func newTestServer(journal *stubJournal) *Server {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(nil, journal, logger, "0")
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(&stubJournal{})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleTrades(t *testing.T) {
	journal := &stubJournal{entries: []models.LedgerEntry{
		{
			Time:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Symbol: "BTCUSDT",
			Action: models.SideBuy,
			Price:  42000,
			Reason: models.ReasonStrategySignal,
		},
	}}
	s := newTestServer(journal)

	rec := httptest.NewRecorder()
	s.handleTrades(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var entries []models.LedgerEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "BTCUSDT", entries[0].Symbol)
}

func TestHandleTradesRejectsPost(t *testing.T) {
	s := newTestServer(&stubJournal{})

	rec := httptest.NewRecorder()
	s.handleTrades(rec, httptest.NewRequest(http.MethodPost, "/api/trades", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
