package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/afroash/smoker-monitor/internal/models"
)

// TimeColumn is the header of the timestamp column in the feed file.
const TimeColumn = "Time (UTC)"

// Row is one line of the feed file: a timestamp and the temperatures of
// the stations that had a value on that line.
type Row struct {
	Line      int
	Timestamp time.Time
	Values    map[models.StationID]float64
}

// Messages frames the row as one message per station, in station order.
// Stations with no value on this row are skipped.
func (r Row) Messages(stations []models.StationID) []models.RawMessage {
	msgs := make([]models.RawMessage, 0, len(stations))
	for _, station := range stations {
		temp, ok := r.Values[station]
		if !ok {
			continue
		}
		msgs = append(msgs, models.RawMessage{
			Channel: string(station),
			Payload: []byte(models.FormatMessage(station, r.Timestamp, temp)),
		})
	}
	return msgs
}

// ReadCSV reads the feed file. Bad timestamps drop the row; empty or
// non-numeric temperatures drop only that station's value. Both are logged.
func ReadCSV(r io.Reader, stations []models.StationID, logger zerolog.Logger) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("feed file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	timeIdx, ok := columns[TimeColumn]
	if !ok {
		return nil, fmt.Errorf("feed file has no %q column", TimeColumn)
	}
	stationIdx := make(map[models.StationID]int, len(stations))
	for _, station := range stations {
		idx, ok := columns[string(station)]
		if !ok {
			logger.Warn().Str("station", station.String()).Msg("Feed file has no column for station")
			continue
		}
		stationIdx[station] = idx
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				logger.Error().Err(err).Int("line", line).Msg("Skipping unreadable row")
				continue
			}
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		if timeIdx >= len(record) {
			logger.Error().Int("line", line).Msg("Row has no timestamp, skipping")
			continue
		}
		ts, err := models.ParseTimestamp(record[timeIdx])
		if err != nil {
			logger.Error().Err(err).Int("line", line).Msg("Skipping row with bad timestamp")
			continue
		}

		row := Row{Line: line, Timestamp: ts, Values: make(map[models.StationID]float64, len(stationIdx))}
		for _, station := range stations {
			idx, ok := stationIdx[station]
			if !ok {
				continue
			}
			var cell string
			if idx < len(record) {
				cell = strings.TrimSpace(record[idx])
			}
			if cell == "" {
				logger.Warn().
					Str("station", station.String()).
					Str("time", record[timeIdx]).
					Msg("Empty temperature value, skipping")
				continue
			}
			temp, err := strconv.ParseFloat(cell, 64)
			if err == nil && (math.IsNaN(temp) || math.IsInf(temp, 0)) {
				err = fmt.Errorf("%w: non-finite temperature %q", models.ErrMalformedMessage, cell)
			}
			if err != nil {
				logger.Error().
					Err(err).
					Str("station", station.String()).
					Int("line", line).
					Msg("Error converting temperature value to float")
				continue
			}
			row.Values[station] = temp
		}
		rows = append(rows, row)
	}

	logger.Info().Int("rows", len(rows)).Msg("Feed file loaded")
	return rows, nil
}

// ReadCSVFile opens path and reads it with ReadCSV
func ReadCSVFile(path string, stations []models.StationID, logger zerolog.Logger) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed file: %w", err)
	}
	defer f.Close()
	return ReadCSV(f, stations, logger.With().Str("file", path).Logger())
}
