package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), nil, logging.Discard(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	return c
}

func TestClient_FetchTab(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.Contains(r.URL.Path, "/v4/spreadsheets/sheet-1/values/"), r.URL.Path)
		assert.Equal(t, "FORMATTED_VALUE", r.URL.Query().Get("valueRenderOption"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"range":"'도수 2025'!A1:C3","majorDimension":"ROWS","values":[["날짜","2025-03-03"],[],["9:00","홍길동","김철수"]]}`))
	})

	g, err := c.FetchTab(context.Background(), "sheet-1", "도수 2025")
	require.NoError(t, err)
	require.Len(t, g, 3)
	assert.Equal(t, "2025-03-03", g.Cell(0, 1))
	assert.Equal(t, "", g.Cell(1, 0))
	assert.Equal(t, "김철수", g.Cell(2, 2))
}

func TestClient_FetchTabError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
	})
	_, err := c.FetchTab(context.Background(), "sheet-1", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets: get values")
}

func TestClient_WriteCell(t *testing.T) {
	var got struct {
		Values [][]string `json:"values"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"updatedCells":1}`))
	})

	applied, err := c.WriteCell(context.Background(), "sheet-1", "도수 2025", "B3", "C이보경(온)")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, [][]string{{"C이보경(온)"}}, got.Values)
}

func TestClient_WriteCellRejectsBadAddress(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.WriteCell(context.Background(), "sheet-1", "t", "B0", "x")
	assert.Error(t, err)
}

func TestQuoteTab(t *testing.T) {
	assert.Equal(t, "'도수 2025'", quoteTab("도수 2025"))
	assert.Equal(t, "'O''Brien'", quoteTab("O'Brien"))
}

