// Package features derives the warehouse domain features consumed by the
// KPI model. Engineering is a pure transform: same input frame, same output,
// row count and row order untouched.
package features

import (
	"fmt"
	"math"
	"time"

	"github.com/wareflow/kpiengine/internal/dataset"
)

// eps stabilizes every ratio denominator. Zero daily demand or zero price is
// valid input and must not produce an infinite feature.
const eps = 1e-5

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

type column struct {
	name   string
	values []float64
}

// Engineer appends the derived feature columns to a copy of raw. The
// reference date for the temporal features is the maximum restock date in the
// input itself, recomputed on every call.
func Engineer(raw *dataset.Frame) (*dataset.Frame, error) {
	out := raw.Clone()

	dates, err := restockDates(out)
	if err != nil {
		return nil, err
	}

	get := func(name string) ([]float64, error) { return out.Numeric(name) }

	stockLevel, err := get("stock_level")
	if err != nil {
		return nil, err
	}
	dailyDemand, err := get("daily_demand")
	if err != nil {
		return nil, err
	}
	demandStdDev, err := get("demand_std_dev")
	if err != nil {
		return nil, err
	}
	forecast7d, err := get("forecasted_demand_next_7d")
	if err != nil {
		return nil, err
	}
	reorderPoint, err := get("reorder_point")
	if err != nil {
		return nil, err
	}
	reorderFreq, err := get("reorder_frequency_days")
	if err != nil {
		return nil, err
	}
	leadTime, err := get("lead_time_days")
	if err != nil {
		return nil, err
	}
	unitPrice, err := get("unit_price")
	if err != nil {
		return nil, err
	}
	handlingCost, err := get("handling_cost_per_unit")
	if err != nil {
		return nil, err
	}
	holdingCost, err := get("holding_cost_per_unit_day")
	if err != nil {
		return nil, err
	}
	layoutEff, err := get("layout_efficiency_score")
	if err != nil {
		return nil, err
	}
	pickingTime, err := get("picking_time_seconds")
	if err != nil {
		return nil, err
	}
	fulfillRate, err := get("order_fulfillment_rate")
	if err != nil {
		return nil, err
	}
	stockouts, err := get("stockout_count_last_month")
	if err != nil {
		return nil, err
	}
	totalOrders, err := get("total_orders_last_month")
	if err != nil {
		return nil, err
	}
	popularity, err := get("item_popularity_score")
	if err != nil {
		return nil, err
	}
	turnover, err := get("turnover_ratio")
	if err != nil {
		return nil, err
	}

	n := out.Rows()

	var refDate time.Time
	for _, d := range dates {
		if d.After(refDate) {
			refDate = d
		}
	}

	daysSince := make([]float64, n)
	month := make([]float64, n)
	dayOfWeek := make([]float64, n)
	quarter := make([]float64, n)
	for i, d := range dates {
		daysSince[i] = math.Floor(refDate.Sub(d).Hours() / 24)
		month[i] = float64(d.Month())
		// Monday-based weekday, matching the training data convention.
		dayOfWeek[i] = float64((int(d.Weekday()) + 6) % 7)
		quarter[i] = float64((int(d.Month())-1)/3 + 1)
	}

	derived := []column{
		{"days_since_restock", daysSince},
		{"restock_month", month},
		{"restock_day_of_week", dayOfWeek},
		{"restock_quarter", quarter},
	}

	variability := make([]float64, n)
	coverage := make([]float64, n)
	forecastAcc := make([]float64, n)
	stability := make([]float64, n)
	urgency := make([]float64, n)
	buffer := make([]float64, n)
	reorderRatio := make([]float64, n)
	stockToReorder := make([]float64, n)
	costEff := make([]float64, n)
	profitMargin := make([]float64, n)
	pickingEff := make([]float64, n)
	holdingRatio := make([]float64, n)
	fulfillQuality := make([]float64, n)
	orderVolume := make([]float64, n)
	stockoutRisk := make([]float64, n)
	popTurnover := make([]float64, n)
	demandPop := make([]float64, n)
	effComposite := make([]float64, n)
	invHealth := make([]float64, n)
	demandSupply := make([]float64, n)

	for i := 0; i < n; i++ {
		variability[i] = demandStdDev[i] / (dailyDemand[i] + eps)
		coverage[i] = stockLevel[i] / (dailyDemand[i] + eps)
		forecastAcc[i] = forecast7d[i] / (dailyDemand[i]*7 + eps)
		stability[i] = 1 / (variability[i] + eps)

		urgency[i] = (stockLevel[i] - reorderPoint[i]) / (dailyDemand[i] + eps)
		buffer[i] = stockLevel[i] - reorderPoint[i]
		reorderRatio[i] = reorderFreq[i] / (leadTime[i] + eps)
		stockToReorder[i] = stockLevel[i] / (reorderPoint[i] + eps)

		costEff[i] = handlingCost[i] / (unitPrice[i] + eps)
		profitMargin[i] = (unitPrice[i] - handlingCost[i]) / (unitPrice[i] + eps)
		pickingEff[i] = layoutEff[i] / (pickingTime[i] + eps)
		holdingRatio[i] = holdingCost[i] / (unitPrice[i] + eps)

		fulfillQuality[i] = fulfillRate[i] * (1 - stockouts[i]/10)
		orderVolume[i] = totalOrders[i] / (dailyDemand[i]*30 + eps)
		stockoutRisk[i] = stockouts[i] / (totalOrders[i] + eps)

		popTurnover[i] = popularity[i] * turnover[i]
		demandPop[i] = dailyDemand[i] / (popularity[i] + eps)

		effComposite[i] = (layoutEff[i] + fulfillRate[i]) / 2
		invHealth[i] = (turnover[i] / 15) * fulfillRate[i] * (1 - stockoutRisk[i])
		demandSupply[i] = coverage[i] * fulfillRate[i]
	}

	derived = append(derived,
		column{"demand_variability", variability},
		column{"stock_coverage_days", coverage},
		column{"forecast_accuracy", forecastAcc},
		column{"demand_stability", stability},
		column{"reorder_urgency", urgency},
		column{"stock_buffer", buffer},
		column{"reorder_frequency_ratio", reorderRatio},
		column{"stock_to_reorder_ratio", stockToReorder},
		column{"cost_efficiency", costEff},
		column{"profit_margin", profitMargin},
		column{"picking_efficiency", pickingEff},
		column{"holding_cost_ratio", holdingRatio},
		column{"fulfillment_quality", fulfillQuality},
		column{"order_volume_per_demand", orderVolume},
		column{"stockout_risk", stockoutRisk},
		column{"popularity_turnover", popTurnover},
		column{"demand_popularity_ratio", demandPop},
		column{"efficiency_composite", effComposite},
		column{"inventory_health", invHealth},
		column{"demand_supply_balance", demandSupply},
	)

	for _, col := range derived {
		if err := out.AddNumeric(col.name, col.values); err != nil {
			return nil, fmt.Errorf("features: %w", err)
		}
	}
	return out, nil
}

func restockDates(f *dataset.Frame) ([]time.Time, error) {
	raw, err := f.String(dataset.ColLastRestockDate)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, len(raw))
	for i, s := range raw {
		d, err := parseDate(s)
		if err != nil {
			return nil, fmt.Errorf("features: row %d: %w", i, err)
		}
		dates[i] = d
	}
	return dates, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable restock date %q", s)
}
