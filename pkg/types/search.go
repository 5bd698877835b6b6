// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the cite-engine pipeline:
// topics, search results, evidence records, topic briefs, and configuration.
//
// Every structured type that crosses a stage boundary carries validate tags
// checked by github.com/go-playground/validator at ingestion.
package types

// Topic is a normalized research theme extracted from the draft. Its identity
// is its text: lowercased, trimmed, and singularized where unambiguous.
type Topic string

// Source is one candidate document returned by the bibliographic search
// provider for a topic. Only URL is guaranteed; the remaining fields are
// filled when the provider has them.
type Source struct {
	// URL locates the source and is the deduplication key downstream.
	URL string `json:"url" yaml:"url" validate:"required"`

	// Title is the document title as returned by the provider.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Authors lists author display names in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year, 0 when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// Venue is the journal, conference, or repository name.
	Venue string `json:"venue,omitempty" yaml:"venue,omitempty"`

	// Abstract is the document abstract or snippet, used as the grounding
	// text for key findings and quotes.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`
}

// TopicSources pairs a topic with its ordered sources.
type TopicSources struct {
	Topic   Topic    `json:"topic" yaml:"topic" validate:"required"`
	Sources []Source `json:"sources" yaml:"sources" validate:"dive"`
}

// SearchResults maps each topic to its ordered sources. Entries appear in
// topic order so downstream processing is deterministic.
type SearchResults struct {
	Entries []TopicSources `json:"entries" yaml:"entries" validate:"dive"`
}

// Topics returns the topics in entry order.
func (r SearchResults) Topics() []Topic {
	topics := make([]Topic, len(r.Entries))
	for i, e := range r.Entries {
		topics[i] = e.Topic
	}
	return topics
}

// Sources returns the sources for topic, or nil if the topic is absent.
func (r SearchResults) Sources(topic Topic) []Source {
	for _, e := range r.Entries {
		if e.Topic == topic {
			return e.Sources
		}
	}
	return nil
}

// URLs returns the ordered source URLs for topic.
func (r SearchResults) URLs(topic Topic) []string {
	sources := r.Sources(topic)
	urls := make([]string, len(sources))
	for i, s := range sources {
		urls[i] = s.URL
	}
	return urls
}

// Len returns the total number of (topic, source) pairs.
func (r SearchResults) Len() int {
	n := 0
	for _, e := range r.Entries {
		n += len(e.Sources)
	}
	return n
}
