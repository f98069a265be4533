package solaredge

import (
	"fmt"
	"strings"
	"time"
)

// TimeUnit selects how far back the playback endpoint reports.
type TimeUnit int

// The portal nominally accepts more granularities (minute, hour, month,
// year, ...), but only the daily and weekly windows return data, so only
// those are exposed.
const (
	TimeUnitDay  TimeUnit = 4
	TimeUnitWeek TimeUnit = 5
)

func (u TimeUnit) String() string {
	switch u {
	case TimeUnitDay:
		return "day"
	case TimeUnitWeek:
		return "week"
	}
	return fmt.Sprintf("TimeUnit(%d)", int(u))
}

// ParseTimeUnit maps the CLI spelling of a reporting window to its portal
// code.
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch strings.ToLower(s) {
	case "day":
		return TimeUnitDay, nil
	case "week":
		return TimeUnitWeek, nil
	}
	return 0, fmt.Errorf("unsupported time unit: %s (use day or week)", s)
}

// Equipment holds the attribute payload of one node of the logical layout
// tree, as returned by the portal. Fields vary by equipment kind; only the
// integer "id" is guaranteed.
type Equipment map[string]any

// EnergySample is the per-equipment production energy in Wh reported for a
// single interval start. Values is keyed by equipment id.
type EnergySample struct {
	StartTime time.Time
	Values    map[int]float64
}

type layoutResponse struct {
	LogicalTree *layoutNode `json:"logicalTree"`
}

type layoutNode struct {
	Data     Equipment    `json:"data"`
	Children []layoutNode `json:"children"`
}

type playbackResponse struct {
	TimeUnit      int                                   `json:"timeUnit"`
	ReportersData map[string]map[string][]playbackEntry `json:"reportersData"`
}

type playbackEntry struct {
	Key   any `json:"key"`
	Value any `json:"value"`
}
