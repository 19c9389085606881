package series

import (
	"time"

	"agribot/internal/models"
)

// TableRow is one raw reading rendered for the table view
type TableRow struct {
	Time        time.Time `json:"timestamp"`
	WaterLevel  float64   `json:"water_level"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	Moisture    float64   `json:"moisture"`
}

// Table lists every reading of snap ordered by timestamp. An empty
// snapshot yields an Empty result of kind EmptyNoData.
func Table(snap models.Snapshot) ([]TableRow, *Empty, error) {
	if snap.IsEmpty() {
		return nil, &Empty{Kind: EmptyNoData}, nil
	}

	readings := snap.Readings()
	rows := make([]TableRow, len(readings))
	for i, r := range readings {
		if err := r.Validate(); err != nil {
			return nil, nil, err
		}
		rows[i] = TableRow{
			Time:        r.Time(),
			WaterLevel:  r.WaterLevel,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Moisture:    r.Moisture,
		}
	}
	return rows, nil, nil
}
