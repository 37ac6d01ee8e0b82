package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

// Format represents the export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options configures the export behavior
type Options struct {
	Format    Format
	StartTime time.Time
	EndTime   time.Time
	// MintFilter оставляет позиции одного актива
	MintFilter string
	// OnlyClosed пропускает открытые позиции
	OnlyClosed bool
	// IncludeSimulated добавляет позиции режима симуляции
	IncludeSimulated bool
}

// Summary contains summary statistics for exported positions
type Summary struct {
	Positions        int       `json:"positions"`
	Closed           int       `json:"closed"`
	UniqueAssets     int       `json:"unique_assets"`
	InvestedSOL      float64   `json:"invested_sol"`
	WinCount         int       `json:"win_count"`
	LossCount        int       `json:"loss_count"`
	WinRate          float64   `json:"win_rate"`
	AvgPnLPercent    float64   `json:"avg_pnl_percent"`
	StartDate        time.Time `json:"start_date"`
	EndDate          time.Time `json:"end_date"`
	SimulatedSkipped int       `json:"simulated_skipped,omitempty"`
}

// Row - позиция в виде, пригодном для выгрузки.
type Row struct {
	ID              int64      `json:"id"`
	AssetAddress    string     `json:"asset_address"`
	Status          string     `json:"status"`
	InvestedSOL     float64    `json:"invested_sol"`
	AssetAmount     uint64     `json:"asset_amount"`
	AmountEstimated bool       `json:"amount_estimated"`
	EntryPrice      float64    `json:"entry_price"`
	ExitPrice       float64    `json:"exit_price,omitempty"`
	PnLPercent      *float64   `json:"pnl_percent,omitempty"`
	Simulated       bool       `json:"simulated"`
	OpenSignature   string     `json:"open_signature"`
	CloseSignature  string     `json:"close_signature,omitempty"`
	OpenedAt        time.Time  `json:"opened_at"`
	ClosedAt        *time.Time `json:"closed_at,omitempty"`
}

// CSVHeaders returns the column names written before CSV rows.
func CSVHeaders() []string {
	return []string{
		"id", "asset_address", "status", "invested_sol", "asset_amount", "amount_estimated",
		"entry_price", "exit_price", "pnl_percent", "simulated",
		"open_signature", "close_signature", "opened_at", "closed_at",
	}
}

func (r Row) csv() []string {
	pnl := ""
	if r.PnLPercent != nil {
		pnl = strconv.FormatFloat(*r.PnLPercent, 'f', 2, 64)
	}
	closed := ""
	if r.ClosedAt != nil {
		closed = r.ClosedAt.Format(time.RFC3339)
	}
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.AssetAddress,
		r.Status,
		strconv.FormatFloat(r.InvestedSOL, 'f', 9, 64),
		strconv.FormatUint(r.AssetAmount, 10),
		strconv.FormatBool(r.AmountEstimated),
		strconv.FormatFloat(r.EntryPrice, 'g', -1, 64),
		strconv.FormatFloat(r.ExitPrice, 'g', -1, 64),
		pnl,
		strconv.FormatBool(r.Simulated),
		r.OpenSignature,
		r.CloseSignature,
		r.OpenedAt.Format(time.RFC3339),
		closed,
	}
}

// Write фильтрует позиции, сортирует по времени открытия и пишет их в w.
func Write(w io.Writer, positions []models.Position, opts Options) (Summary, error) {
	rows, skipped := filter(positions, opts)
	if len(rows) == 0 {
		return Summary{}, fmt.Errorf("no positions match the export criteria")
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].OpenedAt.Before(rows[j].OpenedAt) })

	summary := summarize(rows)
	summary.SimulatedSkipped = skipped

	var err error
	switch opts.Format {
	case FormatCSV, "":
		err = writeCSV(w, rows)
	case FormatJSON:
		err = writeJSON(w, rows, summary)
	default:
		err = fmt.Errorf("unsupported format: %s", opts.Format)
	}
	return summary, err
}

func filter(positions []models.Position, opts Options) ([]Row, int) {
	var (
		rows    []Row
		skipped int
	)
	for _, p := range positions {
		if !opts.StartTime.IsZero() && p.OpenedAt.Before(opts.StartTime) {
			continue
		}
		if !opts.EndTime.IsZero() && p.OpenedAt.After(opts.EndTime) {
			continue
		}
		if opts.MintFilter != "" && p.AssetAddress != opts.MintFilter {
			continue
		}
		if opts.OnlyClosed && p.Status != models.StatusClosed {
			continue
		}
		if p.Simulated && !opts.IncludeSimulated {
			skipped++
			continue
		}
		rows = append(rows, toRow(p))
	}
	return rows, skipped
}

func toRow(p models.Position) Row {
	r := Row{
		ID:              p.ID,
		AssetAddress:    p.AssetAddress,
		Status:          string(p.Status),
		InvestedSOL:     types.LamportsToSOL(p.InvestedAmount),
		AssetAmount:     p.AssetAmount,
		AmountEstimated: p.AmountEstimated,
		EntryPrice:      p.EntryPrice,
		ExitPrice:       p.ExitPrice,
		Simulated:       p.Simulated,
		OpenSignature:   p.OpenSignature,
		CloseSignature:  p.CloseSignature,
		OpenedAt:        p.OpenedAt,
		ClosedAt:        p.ClosedAt,
	}
	// цена выхода может отсутствовать, если оракул был недоступен при продаже
	if p.Status == models.StatusClosed && p.EntryPrice > 0 && p.ExitPrice > 0 {
		pnl := (p.ExitPrice - p.EntryPrice) / p.EntryPrice * 100
		r.PnLPercent = &pnl
	}
	return r
}

func writeCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write(r.csv()); err != nil {
			return fmt.Errorf("failed to write position %d: %w", r.ID, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeJSON(w io.Writer, rows []Row, summary Summary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	data := struct {
		ExportTime time.Time `json:"export_time"`
		Summary    Summary   `json:"summary"`
		Positions  []Row     `json:"positions"`
	}{
		ExportTime: time.Now().UTC(),
		Summary:    summary,
		Positions:  rows,
	}
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// summarize expects rows sorted by OpenedAt.
func summarize(rows []Row) Summary {
	summary := Summary{Positions: len(rows)}
	if len(rows) == 0 {
		return summary
	}
	summary.StartDate = rows[0].OpenedAt
	summary.EndDate = rows[len(rows)-1].OpenedAt

	assets := make(map[string]struct{})
	var (
		totalPnL float64
		priced   int
	)
	for _, r := range rows {
		assets[r.AssetAddress] = struct{}{}
		summary.InvestedSOL += r.InvestedSOL
		if r.Status == string(models.StatusClosed) {
			summary.Closed++
		}
		if r.PnLPercent == nil {
			continue
		}
		priced++
		totalPnL += *r.PnLPercent
		switch {
		case *r.PnLPercent > 0:
			summary.WinCount++
		case *r.PnLPercent < 0:
			summary.LossCount++
		}
	}
	summary.UniqueAssets = len(assets)

	if priced > 0 {
		summary.WinRate = float64(summary.WinCount) / float64(priced) * 100
		summary.AvgPnLPercent = totalPnL / float64(priced)
	}
	return summary
}
