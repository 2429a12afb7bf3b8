package types

import (
	"strconv"
	"strings"
)

// CSVTimeLayout is the wall-clock format of the leading "hora" column.
const CSVTimeLayout = "2006-01-02T15:04:05"

// CSVRow serializes the event as one data line of a CSV partition object,
// matching CSVHeader's column order. Absent channels serialize as empty cells.
func (e TelemetryEvent) CSVRow() string {
	fields := make([]string, 0, len(Channels)+1)
	fields = append(fields, e.Timestamp.UTC().Format(CSVTimeLayout))
	for _, channel := range Channels {
		v := e.Values[channel]
		if v == nil {
			fields = append(fields, "")
			continue
		}
		fields = append(fields, strconv.FormatFloat(*v, 'f', -1, 64))
	}
	return strings.Join(fields, ",")
}
