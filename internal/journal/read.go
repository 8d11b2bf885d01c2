package journal

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"enoctl/internal/model"
)

// ReadCSV loads outcomes from a journal file.
func ReadCSV(path string) ([]model.WaitOutcome, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return readCSV(file)
}

func readCSV(r io.Reader) ([]model.WaitOutcome, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if len(records[0]) > 0 && records[0][0] == "timestamp" {
		start = 1
	}

	items := make([]model.WaitOutcome, 0, len(records)-start)
	for i := start; i < len(records); i++ {
		rec := records[i]
		if len(rec) < len(header) {
			return nil, fmt.Errorf("invalid record at line %d", i+1)
		}
		ts, err := time.Parse(time.RFC3339Nano, rec[0])
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp at line %d: %w", i+1, err)
		}
		matched, err := strconv.ParseBool(rec[4])
		if err != nil {
			return nil, fmt.Errorf("invalid matched flag at line %d: %w", i+1, err)
		}
		polls, _ := strconv.Atoi(rec[5])
		fetchErrors, _ := strconv.Atoi(rec[6])
		elapsed, _ := strconv.ParseFloat(rec[7], 64)
		items = append(items, model.WaitOutcome{
			Timestamp:   ts,
			Node:        rec[1],
			Kind:        rec[2],
			Predicate:   rec[3],
			Matched:     matched,
			Polls:       polls,
			FetchErrors: fetchErrors,
			ElapsedMs:   elapsed,
			Error:       rec[8],
		})
	}

	return items, nil
}
