package messaging

import "encoding/json"

// SiteEvent reports a single Site status transition, published by the
// Coordinator over a Producer every time a crawl job starts, finishes or
// fails, for any decoupled observer that wants a progress feed without
// polling Stats.
type SiteEvent struct {
	SiteURL   string `json:"siteUrl"`
	Status    string `json:"status"`
	LastError string `json:"lastError,omitempty"`
}

// PublishSiteEvent JSON-encodes evt and sends it through p. A nil Producer
// is a silent no-op, so callers can wire events optionally.
func PublishSiteEvent(p Producer, evt SiteEvent) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.Produce(data)
}
