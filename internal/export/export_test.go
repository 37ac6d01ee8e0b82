package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testPositions() []models.Position {
	closedAt := base.Add(3 * time.Hour)
	return []models.Position{
		{
			ID: 2, AssetAddress: "MintB", Status: models.StatusClosed,
			InvestedAmount: types.LamportsPerSOL, AssetAmount: 1000,
			EntryPrice: 1.0, ExitPrice: 0.8, OpenedAt: base.Add(time.Hour), ClosedAt: &closedAt,
			OpenSignature: "open-b", CloseSignature: "close-b",
		},
		{
			ID: 1, AssetAddress: "MintA", Status: models.StatusClosed,
			InvestedAmount: types.LamportsPerSOL / 2, AssetAmount: 500, AmountEstimated: true,
			EntryPrice: 1.0, ExitPrice: 1.3, OpenedAt: base, ClosedAt: &closedAt,
			OpenSignature: "open-a", CloseSignature: "close-a",
		},
		{
			ID: 3, AssetAddress: "MintA", Status: models.StatusOpen,
			InvestedAmount: types.LamportsPerSOL / 4, AssetAmount: 250,
			EntryPrice: 2.0, OpenedAt: base.Add(2 * time.Hour), OpenSignature: "open-c",
		},
		{
			ID: 4, AssetAddress: "MintC", Status: models.StatusClosed, Simulated: true,
			InvestedAmount: types.LamportsPerSOL, EntryPrice: 1, ExitPrice: 2,
			OpenedAt: base.Add(4 * time.Hour), OpenSignature: "SIM-1",
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	summary, err := Write(&buf, testPositions(), Options{Format: FormatCSV})
	require.NoError(t, err)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, CSVHeaders(), records[0])

	// sorted by open time
	assert.Equal(t, "1", records[1][0])
	assert.Equal(t, "2", records[2][0])
	assert.Equal(t, "3", records[3][0])
	assert.Equal(t, "30.00", records[1][8])
	assert.Equal(t, "", records[3][8], "open positions have no pnl")

	assert.Equal(t, 3, summary.Positions)
	assert.Equal(t, 1, summary.SimulatedSkipped)
}

func TestWriteJSON_Summary(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, testPositions(), Options{Format: FormatJSON, IncludeSimulated: true})
	require.NoError(t, err)

	var out struct {
		Summary   Summary `json:"summary"`
		Positions []Row   `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))

	s := out.Summary
	assert.Equal(t, 4, s.Positions)
	assert.Equal(t, 3, s.Closed)
	assert.Equal(t, 3, s.UniqueAssets)
	assert.Equal(t, 2, s.WinCount)
	assert.Equal(t, 1, s.LossCount)
	assert.InDelta(t, 66.67, s.WinRate, 0.01)
	// (30 - 20 + 100) / 3
	assert.InDelta(t, 36.67, s.AvgPnLPercent, 0.01)
	assert.InDelta(t, 2.75, s.InvestedSOL, 1e-9)
	assert.True(t, s.StartDate.Equal(base))
	require.Len(t, out.Positions, 4)
}

func TestWrite_Filters(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		ids  []int64
	}{
		{"mint", Options{MintFilter: "MintA"}, []int64{1, 3}},
		{"only closed", Options{OnlyClosed: true}, []int64{1, 2}},
		{"time window", Options{StartTime: base.Add(30 * time.Minute), EndTime: base.Add(90 * time.Minute)}, []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.opts.Format = FormatJSON
			_, err := Write(&buf, testPositions(), tt.opts)
			require.NoError(t, err)

			var out struct {
				Positions []Row `json:"positions"`
			}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
			var ids []int64
			for _, r := range out.Positions {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestWrite_NoMatches(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, testPositions(), Options{MintFilter: "Nothing"})
	assert.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, testPositions(), Options{Format: "xml"})
	assert.ErrorContains(t, err, "unsupported format")
}
