package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the M/D/YYYY HH:MM form used on the wire and in the CSV feed.
const TimestampLayout = "1/2/2006 15:04"

const timePrefix = "Time: "

// ErrMalformedMessage is wrapped by every framing parse failure.
var ErrMalformedMessage = errors.New("malformed message")

// RawMessage is an undecoded message together with the channel it arrived on.
type RawMessage struct {
	Channel    string
	Payload    []byte
	ReceivedAt time.Time
}

// ParsedMessage is the decoded content of a framed message.
type ParsedMessage struct {
	StationID    StationID
	Timestamp    time.Time
	TemperatureF float64
}

// Reading converts the parsed message into a Reading
func (p ParsedMessage) Reading() Reading {
	return NewReading(p.StationID, p.Timestamp, p.TemperatureF)
}

// FormatMessage encodes a reading as "Time: <M/D/YYYY HH:MM>, <Station>: <temp>".
func FormatMessage(station StationID, ts time.Time, temperatureF float64) string {
	return fmt.Sprintf("%s%s, %s: %s",
		timePrefix,
		ts.Format(TimestampLayout),
		station,
		strconv.FormatFloat(temperatureF, 'f', -1, 64),
	)
}

// ParseTimestamp parses a feed timestamp in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	ts, err := time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad timestamp %q", ErrMalformedMessage, s)
	}
	return ts, nil
}

// ParseMessage decodes a framed message. Every error wraps ErrMalformedMessage.
func ParseMessage(payload []byte) (ParsedMessage, error) {
	body := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(body, timePrefix) {
		return ParsedMessage{}, fmt.Errorf("%w: missing %q prefix", ErrMalformedMessage, strings.TrimSpace(timePrefix))
	}
	body = strings.TrimPrefix(body, timePrefix)

	timePart, valuePart, ok := strings.Cut(body, ",")
	if !ok {
		return ParsedMessage{}, fmt.Errorf("%w: missing temperature field", ErrMalformedMessage)
	}

	ts, err := ParseTimestamp(timePart)
	if err != nil {
		return ParsedMessage{}, err
	}

	name, tempStr, ok := strings.Cut(strings.TrimSpace(valuePart), ":")
	if !ok {
		return ParsedMessage{}, fmt.Errorf("%w: missing station name", ErrMalformedMessage)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ParsedMessage{}, fmt.Errorf("%w: empty station name", ErrMalformedMessage)
	}

	tempStr = strings.TrimSpace(tempStr)
	if tempStr == "" {
		return ParsedMessage{}, fmt.Errorf("%w: missing temperature value", ErrMalformedMessage)
	}
	temp, err := strconv.ParseFloat(tempStr, 64)
	if err != nil || math.IsNaN(temp) || math.IsInf(temp, 0) {
		return ParsedMessage{}, fmt.Errorf("%w: non-numeric temperature %q", ErrMalformedMessage, tempStr)
	}

	return ParsedMessage{
		StationID:    StationID(name),
		Timestamp:    ts,
		TemperatureF: temp,
	}, nil
}
