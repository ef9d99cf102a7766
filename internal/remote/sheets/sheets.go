// Package sheets backs the remote repository port with a Google Sheets
// spreadsheet. Each collection maps to one tab; entities live one per row,
// keyed by the id in column A.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"soldi/internal/core"
	"soldi/internal/remote"

	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config holds what the client needs beyond ambient credentials.
type Config struct {
	SpreadsheetID string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
	// SheetFor maps a collection name to its tab; empty entries fall back to
	// the collection name with the first letter upcased.
	SheetFor map[string]string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetFor      map[string]string
}

var _ remote.Repository = (*Client)(nil)

func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetFor:      cfg.SheetFor,
	}, nil
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	var credentialsJSON []byte
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		slog.InfoContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", cfg.CredentialsFile)
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials")
	}

	return gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

func (c *Client) sheetName(collection string) string {
	if name, ok := c.sheetFor[collection]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	if collection == "" {
		return collection
	}
	return strings.ToUpper(collection[:1]) + collection[1:]
}

// Create appends the entity to the first free row of the collection's tab.
func (c *Client) Create(ctx context.Context, collection string, tx core.Transaction) error {
	sheet := c.sheetName(collection)
	ids, err := c.readIDColumn(ctx, sheet)
	if err != nil {
		return classify(err)
	}
	row := len(ids) + 1
	return c.writeRow(ctx, sheet, row, tx)
}

// Update locates the entity's row by id and rewrites it in place.
func (c *Client) Update(ctx context.Context, collection string, tx core.Transaction) error {
	sheet := c.sheetName(collection)
	ids, err := c.readIDColumn(ctx, sheet)
	if err != nil {
		return classify(err)
	}
	row := findRowByID(ids, tx.ID)
	if row == 0 {
		return remote.Permanent(fmt.Errorf("entity %s not found in sheet %s", tx.ID, sheet))
	}
	return c.writeRow(ctx, sheet, row, tx)
}

// Delete clears the entity's row. The row itself stays so later rows keep
// their positions; readers skip rows with an empty id.
func (c *Client) Delete(ctx context.Context, collection string, id string) error {
	sheet := c.sheetName(collection)
	ids, err := c.readIDColumn(ctx, sheet)
	if err != nil {
		return classify(err)
	}
	row := findRowByID(ids, id)
	if row == 0 {
		// Already gone; deletes are idempotent.
		return nil
	}
	rng := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
	_, err = c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("clear %s: %w", rng, err))
	}
	return nil
}

func (c *Client) readIDColumn(ctx context.Context, sheet string) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	ids := make([]string, len(resp.Values))
	for i, row := range resp.Values {
		if len(row) > 0 {
			ids[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return ids, nil
}

func (c *Client) writeRow(ctx context.Context, sheet string, row int, tx core.Transaction) error {
	rng := fmt.Sprintf("%s!A%d:H%d", sheet, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{rowValues(tx)}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return classify(fmt.Errorf("update %s: %w", rng, err))
	}
	return nil
}

func rowValues(tx core.Transaction) []any {
	units := float64(tx.Amount.Cents()) / 100.0
	return []any{
		tx.ID,
		tx.Date.Month(),
		tx.Date.Day(),
		tx.Description,
		units,
		string(tx.Kind),
		tx.Primary,
		tx.Secondary,
	}
}

// findRowByID returns the 1-based spreadsheet row of the id, 0 if absent.
func findRowByID(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i + 1
		}
	}
	return 0
}

// classify maps a Sheets API error onto the retry taxonomy. Client errors
// will not heal on retry except for rate limiting and timeouts; everything
// else is worth retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 408 || apiErr.Code == 429:
			return remote.Transient(err)
		case apiErr.Code >= 400 && apiErr.Code < 500:
			return remote.Permanent(err)
		default:
			return remote.Transient(err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return remote.Transient(err)
	}
	return remote.Transient(err)
}
