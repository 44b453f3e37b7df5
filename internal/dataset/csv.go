package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Column names of the raw warehouse dataset. Target is optional at inference
// time; everything else is required.
const (
	ColItemID            = "item_id"
	ColCategory          = "category"
	ColZone              = "zone"
	ColStorageLocationID = "storage_location_id"
	ColLastRestockDate   = "last_restock_date"
	ColTarget            = "KPI_score"
)

// stringColumns are the raw columns carried as strings; every other raw
// column is numeric.
var stringColumns = map[string]bool{
	ColItemID:            true,
	ColCategory:          true,
	ColZone:              true,
	ColStorageLocationID: true,
	ColLastRestockDate:   true,
}

// RequiredRawColumns is the fixed raw schema the pipeline expects.
var RequiredRawColumns = []string{
	ColItemID,
	ColCategory,
	ColZone,
	ColStorageLocationID,
	ColLastRestockDate,
	"stock_level",
	"daily_demand",
	"demand_std_dev",
	"forecasted_demand_next_7d",
	"reorder_point",
	"reorder_frequency_days",
	"lead_time_days",
	"unit_price",
	"handling_cost_per_unit",
	"holding_cost_per_unit_day",
	"layout_efficiency_score",
	"picking_time_seconds",
	"order_fulfillment_rate",
	"stockout_count_last_month",
	"total_orders_last_month",
	"item_popularity_score",
	"turnover_ratio",
}

// LoadCSV reads a raw dataset file and validates the fixed schema. Any
// required column missing from the header is fatal.
func LoadCSV(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses CSV content from r. The first record is the header.
func ReadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[name] = i
	}
	for _, name := range RequiredRawColumns {
		if _, ok := index[name]; !ok {
			return nil, &MissingColumnError{Column: name}
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("dataset: read rows: %w", err)
	}

	frame := New(len(records))
	for _, name := range header {
		col := index[name]
		if stringColumns[name] {
			values := make([]string, len(records))
			for i, rec := range records {
				values[i] = rec[col]
			}
			if err := frame.AddString(name, values); err != nil {
				return nil, err
			}
			continue
		}
		values := make([]float64, len(records))
		for i, rec := range records {
			v, err := strconv.ParseFloat(rec[col], 64)
			if err != nil {
				return nil, fmt.Errorf("dataset: row %d column %q: %w", i+1, name, err)
			}
			values[i] = v
		}
		if err := frame.AddNumeric(name, values); err != nil {
			return nil, err
		}
	}
	return frame, nil
}
