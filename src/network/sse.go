package network

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gapper-terminal/src/models"
)

// MaxEventSize bounds a single SSE line.
const MaxEventSize = 256 * 1024

// -----------------------------------------------------------------------------
// SSEReader parses Server-Sent Events from a stream.
// -----------------------------------------------------------------------------

type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), MaxEventSize)
	return &SSEReader{scanner: sc}
}

// -----------------------------------------------------------------------------

// ReadEvent returns the next event name and its joined data lines.
// Comments and id/retry fields are skipped. Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var (
		eventType string
		dataLines [][]byte
	)

	for s.scanner.Scan() {
		line := bytes.TrimRight(s.scanner.Bytes(), "\r")

		// Empty line signals end of event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			eventType = ""
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		value = bytes.TrimPrefix(value, []byte(" "))
		switch string(field) {
		case "event":
			eventType = string(value)
		case "data":
			dataLines = append(dataLines, append([]byte(nil), value...))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", nil, err
	}
	if len(dataLines) > 0 {
		return eventType, bytes.Join(dataLines, []byte("\n")), nil
	}
	return "", nil, io.EOF
}

// -----------------------------------------------------------------------------

// DecodeEvent turns an SSE data payload into a stream event. The SSE event
// name is used when the JSON body carries no event_type.
func DecodeEvent(name string, data []byte, now time.Time) (models.MStreamEvent, error) {
	var wire models.MWireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return models.MStreamEvent{}, fmt.Errorf("decode stream event: %w", err)
	}

	kind := wire.EventType
	if kind == "" {
		kind = name
	}

	ticker := strings.ToUpper(strings.TrimSpace(wire.Ticker))
	channel := strings.TrimSpace(wire.Channel)
	if strings.EqualFold(ticker, models.LiveGappersChannel) {
		ticker = ""
		channel = models.LiveGappersChannel
	}
	if channel == "" {
		channel = ticker
	}

	ts, err := parseTimestamp(wire.Timestamp)
	if err != nil {
		return models.MStreamEvent{}, err
	}
	if ts.IsZero() {
		ts = now
	}

	return models.MStreamEvent{
		EventType:  models.ParseEventType(kind),
		Ticker:     ticker,
		Payload:    wire.Payload,
		Timestamp:  ts,
		ChannelKey: channel,
	}, nil
}

// -----------------------------------------------------------------------------

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
		}
		return t, nil
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode timestamp: %w", err)
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)), nil
	}
	sec := int64(f)
	return time.Unix(sec, int64((f-float64(sec))*1e9)), nil
}
