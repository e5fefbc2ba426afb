package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"openmetric/internal/core"
	"openmetric/internal/sources"
)

// Ensure interface conformance
var (
	_ sources.DatasetReader = (*Client)(nil)
	_ sources.EventWriter   = (*Client)(nil)
)

const (
	DefaultEventsSheet    = "Events"
	DefaultRetentionSheet = "Retention"
)

// Client reads events and cohorts from two tabs of one spreadsheet.
//
// The events tab has a header row with event_type, customer_id, amount,
// description and timestamp columns in any order. The retention tab has a
// month column, an acquired column and one column per tracked period after
// it.
type Client struct {
	svc            *gsheet.Service
	spreadsheetID  string
	eventsSheet    string
	retentionSheet string
}

type Options struct {
	SpreadsheetID  string
	EventsSheet    string
	RetentionSheet string
}

// New creates a Sheets client. A configured OAuth client with a saved token
// wins; otherwise service account credentials come from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, opts), nil
}

// NewWithService wraps an existing service.
func NewWithService(svc *gsheet.Service, opts Options) *Client {
	c := &Client{
		svc:            svc,
		spreadsheetID:  strings.TrimSpace(opts.SpreadsheetID),
		eventsSheet:    strings.TrimSpace(opts.EventsSheet),
		retentionSheet: strings.TrimSpace(opts.RetentionSheet),
	}
	if c.eventsSheet == "" {
		c.eventsSheet = DefaultEventsSheet
	}
	if c.retentionSheet == "" {
		c.retentionSheet = DefaultRetentionSheet
	}
	return c
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if opt, err := oauthOption(ctx); err != nil {
		return nil, err
	} else if opt != nil {
		slog.InfoContext(ctx, "Creating Google Sheets service", "auth", "oauth", "token_file", TokenFile())
		return gsheet.NewService(ctx, opt)
	}

	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	slog.InfoContext(ctx, "Creating Google Sheets service",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// LoadDataset reads both tabs in one batch request.
func (c *Client) LoadDataset(ctx context.Context) (core.Dataset, error) {
	if c.svc == nil {
		return core.Dataset{}, fmt.Errorf("%w: sheets service not initialized", core.ErrSourceUnavailable)
	}
	eventsRange := c.eventsSheet + "!A:E"
	retentionRange := c.retentionSheet + "!A:ZZ"
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).
		Ranges(eventsRange, retentionRange).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%w: read %s, %s: %v", core.ErrSourceUnavailable, eventsRange, retentionRange, err)
	}
	if len(resp.ValueRanges) != 2 {
		return core.Dataset{}, fmt.Errorf("%w: expected 2 ranges, got %d", core.ErrSourceUnavailable, len(resp.ValueRanges))
	}

	events, err := parseEvents(resp.ValueRanges[0].Values)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%s: %w", c.eventsSheet, err)
	}
	cohorts, err := parseCohorts(resp.ValueRanges[1].Values)
	if err != nil {
		return core.Dataset{}, fmt.Errorf("%s: %w", c.retentionSheet, err)
	}
	return core.Dataset{Name: c.spreadsheetID, Events: events, Cohorts: cohorts}, nil
}

// AppendEvent appends one row to the events tab and returns the updated
// range.
func (c *Client) AppendEvent(ctx context.Context, e core.Event) (string, error) {
	if err := e.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	vr := &gsheet.ValueRange{Values: [][]any{eventRow(e)}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, c.eventsSheet+"!A:E", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", c.eventsSheet, err)
	}
	if resp.Updates != nil {
		return resp.Updates.UpdatedRange, nil
	}
	return c.eventsSheet, nil
}
