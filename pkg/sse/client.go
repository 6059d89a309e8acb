package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/theapemachine/a2a-sdk/pkg/metrics"
)

// ContentType is the media type an event stream response must carry.
const ContentType = "text/event-stream"

// Event represents a single Server-Sent Event frame.
type Event struct {
	ID    string
	Event string
	Data  []byte
}

/*
Reader decodes Server-Sent Event frames from a response body.  It owns no
connection state; callers hand it the body of an already-validated stream
response and read frames until io.EOF.
*/
type Reader struct {
	Metrics *metrics.StreamingMetrics
	scan    *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		Metrics: metrics.NewStreamingMetrics(),
		scan:    bufio.NewReader(r),
	}
}

/*
Next reads one frame.  Multi-line data fields are joined with newlines and
comment lines are skipped.  The stream ending mid-frame surfaces
io.ErrUnexpectedEOF, a clean close plain io.EOF.
*/
func (r *Reader) Next() (*Event, error) {
	started := time.Now()
	event := &Event{}

	var data strings.Builder
	inEvent := false

	for {
		line, err := r.scan.ReadString('\n')

		if err != nil {
			if err == io.EOF && inEvent {
				return nil, io.ErrUnexpectedEOF
			}

			return nil, err
		}

		line = strings.TrimRight(line, "\n\r")

		// An empty line marks the end of a frame.
		if line == "" {
			if !inEvent {
				continue
			}

			event.Data = []byte(data.String())
			r.Metrics.RecordEvent(false, time.Since(started), time.Since(started))

			return event, nil
		}

		inEvent = true

		switch {
		case strings.HasPrefix(line, "id:"):
			event.ID = strings.TrimSpace(line[3:])
		case strings.HasPrefix(line, "event:"):
			event.Event = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteString("\n")
			}

			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case strings.HasPrefix(line, ":"):
			// Comment line, ignore.
		}
	}
}

// IsEventStream reports whether a Content-Type header value denotes an SSE
// body. Parameters such as charset are tolerated.
func IsEventStream(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), ContentType)
}

/*
ExtractErrorMessage digs a human-readable message out of an HTTP error
body.  Servers answer failed stream requests with a variety of JSON
shapes, so this walks the common ones before surrendering to the raw
text or the supplied fallback (typically the HTTP reason phrase).
*/
func ExtractErrorMessage(body []byte, fallback string) string {
	trimmed := strings.TrimSpace(string(body))

	if trimmed == "" {
		return fallback
	}

	var asMap map[string]any

	if err := json.Unmarshal(body, &asMap); err == nil {
		title, hasTitle := asMap["title"].(string)
		detail, hasDetail := asMap["detail"].(string)

		if hasTitle && hasDetail {
			return title + ": " + detail
		}

		for _, key := range []string{"message", "detail", "error", "title"} {
			if value, ok := asMap[key].(string); ok && value != "" {
				return value
			}
		}
	}

	var asList []any

	if err := json.Unmarshal(body, &asList); err == nil {
		for _, item := range asList {
			if value, ok := item.(string); ok && value != "" {
				return value
			}
		}
	}

	return trimmed
}
