// Package sheets adapts spreadsheet backends to the sync pipeline: the Google
// Sheets API for live tabs and local xlsx workbooks for exports and dry runs.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"github.com/wolfman30/clinic-sheet-sync/internal/grid"
	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// Scope is the OAuth scope the source and writer need.
const Scope = gsheets.SpreadsheetsScope

// Client reads and writes tabs through the Sheets API v4.
type Client struct {
	svc    *gsheets.Service
	logger *logging.Logger
}

// NewClient builds a client. ts supplies the access token for every call; extra
// options (endpoint, http client) are appended.
func NewClient(ctx context.Context, ts oauth2.TokenSource, logger *logging.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &Client{svc: svc, logger: logger}, nil
}

// FetchTab returns the formatted values of the whole tab. Trailing empty
// cells are omitted by the API, so rows come back jagged.
func (c *Client) FetchTab(ctx context.Context, sourceID, tab string) (grid.RawGrid, error) {
	if sourceID == "" {
		return nil, errors.New("sheets: spreadsheet id required")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(sourceID, quoteTab(tab)).
		ValueRenderOption("FORMATTED_VALUE").
		MajorDimension("ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: get values %q: %w", tab, err)
	}

	out := make(grid.RawGrid, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v == nil {
				continue
			}
			cells[j] = fmt.Sprint(v)
		}
		out[i] = cells
	}
	c.logger.Debug("fetched tab", "source_id", sourceID, "tab", tab, "rows", len(out))
	return out, nil
}

// WriteCell overwrites one cell with raw text. A successful update is always
// reported as applied.
func (c *Client) WriteCell(ctx context.Context, sourceID, tab, cell, text string) (bool, error) {
	if _, _, err := grid.CellCoordinates(cell); err != nil {
		return false, fmt.Errorf("sheets: write cell: %w", err)
	}
	body := &gsheets.ValueRange{Values: [][]interface{}{{text}}}
	_, err := c.svc.Spreadsheets.Values.Update(sourceID, quoteTab(tab)+"!"+cell, body).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("sheets: update %s!%s: %w", tab, cell, err)
	}
	return true, nil
}

// quoteTab wraps a tab name for A1 notation, doubling embedded quotes.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}
