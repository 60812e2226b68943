package analytics

import "time"

type EventType string

const (
	EventForecast      EventType = "forecast"
	EventDocumentIndex EventType = "document_indexed"
	EventChatQuery     EventType = "chat_query"
	EventSearch        EventType = "search"
	EventSummary       EventType = "report_summary"
)

// Event is the single envelope published on the analytics topic. Fields
// that do not apply to Type are left zero.
type Event struct {
	Type      EventType `json:"type"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`

	CompanyID int    `json:"company_id,omitempty"`
	Trend     string `json:"trend,omitempty"`
	CacheHit  bool   `json:"cache_hit,omitempty"`
	Failed    bool   `json:"failed,omitempty"`

	DocumentID string `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks,omitempty"`
	Source     string `json:"source,omitempty"`

	Query   string `json:"query,omitempty"`
	Matched int    `json:"matched"`
	Outcome string `json:"outcome,omitempty"`

	Pages int `json:"pages,omitempty"`
}

// ForecastEvent records one prediction request. An empty trend marks a
// failed forecast.
func ForecastEvent(companyID int, trend string, cacheHit bool, latency time.Duration) Event {
	return Event{
		Type:      EventForecast,
		CompanyID: companyID,
		Trend:     trend,
		CacheHit:  cacheHit,
		Failed:    trend == "",
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
}

// IndexEvent records a document written to the chunk store.
func IndexEvent(documentID, source string, chunks int, latency time.Duration) Event {
	return Event{
		Type:       EventDocumentIndex,
		DocumentID: documentID,
		Source:     source,
		Chunks:     chunks,
		LatencyMs:  latency.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}

// QueryEvent records a search or chat question and how many chunks matched
// it with a positive score.
func QueryEvent(typ EventType, documentID, query string, matched int, outcome string, latency time.Duration) Event {
	return Event{
		Type:       typ,
		DocumentID: documentID,
		Query:      query,
		Matched:    matched,
		Outcome:    outcome,
		LatencyMs:  latency.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
}

// SummaryEvent records a report summarisation.
func SummaryEvent(pages int, failed bool, latency time.Duration) Event {
	return Event{
		Type:      EventSummary,
		Pages:     pages,
		Failed:    failed,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
}
