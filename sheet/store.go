// Package sheet handles the spreadsheet side of the emailer: the duty
// roster and datagrid curation inputs and the issue-tracker output.
package sheet

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// TabularStore is a keyed tabular document: whole-sheet reads and
// whole-sheet batch writes by sheet name.
type TabularStore interface {
	GetValues(sheetName string) ([][]string, error)
	UpdateValues(sheetName string, values [][]string) error
}

// GoogleSheetStore backs a TabularStore with one Google spreadsheet.
type GoogleSheetStore struct {
	svc           *sheets.Service
	spreadsheetID string
}

// NewGoogleSheetStore authorizes with service-account JSON and opens the
// given spreadsheet.
func NewGoogleSheetStore(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (*GoogleSheetStore, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, "https://www.googleapis.com/auth/spreadsheets")
	if err != nil {
		return nil, fmt.Errorf("invalid sheets credentials: %w", err)
	}
	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}
	return &GoogleSheetStore{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (g *GoogleSheetStore) GetValues(sheetName string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, sheetName).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheetName, err)
	}
	values := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		values[i] = cells
	}
	return values, nil
}

func (g *GoogleSheetStore) UpdateValues(sheetName string, values [][]string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, sheetName, &sheets.ClearValuesRequest{}).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet %s: %w", sheetName, err)
	}
	cells := make([][]any, len(values))
	for i, row := range values {
		cell := make([]any, len(row))
		for j, v := range row {
			cell[j] = v
		}
		cells[i] = cell
	}
	vr := &sheets.ValueRange{Values: cells}
	_, err = g.svc.Spreadsheets.Values.Update(g.spreadsheetID, sheetName+"!A1", vr).
		ValueInputOption("RAW").Do()
	if err != nil {
		return fmt.Errorf("failed to update sheet %s: %w", sheetName, err)
	}
	return nil
}

// CSVDirStore backs a TabularStore with one CSV file per sheet in a
// directory. Used for local runs and tests.
type CSVDirStore struct {
	dir string
}

func NewCSVDirStore(dir string) *CSVDirStore {
	return &CSVDirStore{dir: dir}
}

func (c *CSVDirStore) path(sheetName string) string {
	return filepath.Join(c.dir, sheetName+".csv")
}

func (c *CSVDirStore) GetValues(sheetName string) ([][]string, error) {
	f, err := os.Open(c.path(sheetName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func (c *CSVDirStore) UpdateValues(sheetName string, values [][]string) error {
	if err := os.MkdirAll(c.dir, os.ModePerm); err != nil {
		return err
	}
	f, err := os.Create(c.path(sheetName))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(values); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
