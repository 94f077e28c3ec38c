package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/scoutear/gestor-turnos/internal/models"
	"github.com/scoutear/gestor-turnos/internal/schedule"
)

const (
	DefaultSheetName = "Reservas"
	timestampLayout  = "2006-01-02 15:04:05"
	lastColumn       = "J"
)

var header = []interface{}{"ID", "Fecha", "Hora", "Nombre", "Teléfono", "Pago", "Monto", "Comentario", "Creado", "Actualizado"}

var errRowNotFound = errors.New("reservation row not found")

// SheetsService stores one reservation per row of a single sheet. Column A holds the
// reservation ID and is indexed by rowCache.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

// NewSimpleSheetsService authenticates with a service account key file.
func NewSimpleSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string) (*SheetsService, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	return NewSheetsService(ctx, spreadsheetID, sheetName, option.WithHTTPClient(config.Client(ctx)))
}

// NewSheetsService builds the service with explicit client options.
func NewSheetsService(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*SheetsService, error) {
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	if sheetName == "" {
		sheetName = DefaultSheetName
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           time.Local,
		rowCache:      make(map[string]int),
	}, nil
}

// SetLocation sets the zone used for the Creado/Actualizado columns.
func (s *SheetsService) SetLocation(loc *time.Location) {
	if loc != nil {
		s.loc = loc
	}
}

// ServiceAccountEmail returns the client_email of a credentials file, which is the
// address the spreadsheet has to be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

func (s *SheetsService) cell(r string) string {
	return fmt.Sprintf("'%s'!%s", s.sheetName, r)
}

// Ping reads the first cell of the sheet.
func (s *SheetsService) Ping(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.cell("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles into row 1.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.cell("A1:"+lastColumn+"1"), &sheets.ValueRange{
		Values: [][]interface{}{header},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to write header: %w", err)
	}
	return nil
}

// StartCacheRefresh re-reads the ID column every interval until ctx is done.
func (s *SheetsService) StartCacheRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
				_ = s.WarmUpCache(wctx)
				cancel()
			}
		}
	}()
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.cell("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[string]int, len(resp.Values))
	for i, row := range resp.Values {
		if id := cellString(row, 0); id != "" && i > 0 {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

// FindReservationRow locates the 1-based row for id, scanning column A on a cache miss.
func (s *SheetsService) FindReservationRow(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, errors.New("reservation id is required")
	}
	if row, ok := s.getCachedRow(id); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.cell("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellString(row, 0) == id {
			s.setCachedRow(id, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

// AppendReservation adds a row at the end of the sheet.
func (s *SheetsService) AppendReservation(ctx context.Context, rec models.ReservationRecord) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.cell("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(rec)},
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row, ok := firstRow(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(rec.ID, row)
		}
	}
	return nil
}

// UpsertReservation rewrites the row for rec.ID or appends one when it is missing.
func (s *SheetsService) UpsertReservation(ctx context.Context, rec models.ReservationRecord) error {
	rowIdx, err := s.FindReservationRow(ctx, rec.ID)
	if err != nil {
		if errors.Is(err, errRowNotFound) {
			return s.AppendReservation(ctx, rec)
		}
		return err
	}

	rangeData := s.cell(fmt.Sprintf("A%d:%s%d", rowIdx, lastColumn, rowIdx))
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, &sheets.ValueRange{
		Values: [][]interface{}{s.rowValues(rec)},
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err == nil {
		s.claimRow(rec.ID, rowIdx)
	}
	return err
}

// DeleteReservationRow clears the row for id. A missing row is not an error, and
// neither is an empty id since no row can be addressed by it.
func (s *SheetsService) DeleteReservationRow(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	rowIdx, err := s.FindReservationRow(ctx, id)
	if errors.Is(err, errRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rangeData := s.cell(fmt.Sprintf("A%d:%s%d", rowIdx, lastColumn, rowIdx))
	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCacheRow(id)
	}
	return err
}

// LoadSnapshot reads every data row and keeps those dated in [from, to). The row cache
// is rebuilt from the same read.
func (s *SheetsService) LoadSnapshot(ctx context.Context, from, to time.Time) ([]models.ReservationRecord, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.cell("A:"+lastColumn)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", s.sheetName, err)
	}

	lo, hi := schedule.DateKey(from), schedule.DateKey(to)
	cache := make(map[string]int, len(resp.Values))
	var records []models.ReservationRecord
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue
		}
		rec := s.parseRow(row)
		if rec.Date == "" {
			continue
		}
		if rec.ID != "" {
			cache[rec.ID] = i + 1
		}
		// rows without a usable ID are also reachable under the derived one, so
		// committing that ID rewrites the row instead of appending a copy
		if derived := rec.ReservationID().String(); derived != rec.ID {
			cache[derived] = i + 1
		}
		if rec.Date >= lo && rec.Date < hi {
			records = append(records, rec)
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].Time < records[j].Time
	})
	return records, nil
}

func (s *SheetsService) Commit(ctx context.Context, rec models.ReservationRecord) error {
	return s.UpsertReservation(ctx, rec)
}

func (s *SheetsService) Delete(ctx context.Context, id string) error {
	return s.DeleteReservationRow(ctx, id)
}

func (s *SheetsService) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// claimRow points id at row and drops any other id cached for the same row.
func (s *SheetsService) claimRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	for other, r := range s.rowCache {
		if r == row && other != id {
			delete(s.rowCache, other)
		}
	}
	s.rowCache[id] = row
}

func (s *SheetsService) deleteCacheRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
}

func (s *SheetsService) rowValues(rec models.ReservationRecord) []interface{} {
	return []interface{}{
		rec.ID,
		rec.Date,
		rec.Time,
		rec.ClientName,
		rec.Phone,
		rec.Payment,
		rec.Amount.String(),
		rec.Comment,
		s.formatTime(rec.CreatedAt),
		s.formatTime(rec.UpdatedAt),
	}
}

func (s *SheetsService) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.loc).Format(timestampLayout)
}

func (s *SheetsService) parseTime(v string) time.Time {
	t, err := time.ParseInLocation(timestampLayout, v, s.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseRow is lenient: bad amounts and timestamps become zero values and the store
// decides what to do with the rest.
func (s *SheetsService) parseRow(row []interface{}) models.ReservationRecord {
	rec := models.ReservationRecord{
		ID:         cellString(row, 0),
		Date:       cellString(row, 1),
		Time:       cellString(row, 2),
		ClientName: cellString(row, 3),
		Phone:      cellString(row, 4),
		Payment:    cellString(row, 5),
		Comment:    cellString(row, 7),
		CreatedAt:  s.parseTime(cellString(row, 8)),
		UpdatedAt:  s.parseTime(cellString(row, 9)),
	}
	if amount, err := decimal.NewFromString(cellString(row, 6)); err == nil {
		rec.Amount = amount
	}
	return rec
}

func cellString(row []interface{}, i int) string {
	if i >= len(row) || row[i] == nil {
		return ""
	}
	switch v := row[i].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

var rangeRowRe = regexp.MustCompile(`![A-Z]+(\d+)`)

// firstRow extracts the first row number of an A1 range like "'Reservas'!A12:J12".
func firstRow(a1 string) (int, bool) {
	m := rangeRowRe.FindStringSubmatch(a1)
	if m == nil {
		return 0, false
	}
	row, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return row, true
}
