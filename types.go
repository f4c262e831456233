package main

import (
	"log/slog"
	"time"
)

// Article represents the readable content extracted from a web page
type Article struct {
	Title     string    `json:"title"`
	SourceURL string    `json:"source_url"`
	Byline    string    `json:"byline"`
	SiteName  string    `json:"site_name"`
	Body      string    `json:"body"` // cleaned HTML, images removed
	Text      string    `json:"text"`
	SavedAt   time.Time `json:"saved_at"`
}

// Document is the self-contained HTML file mailed to the Kindle address
type Document struct {
	Title    string
	Filename string
	HTML     []byte
}

// Credentials holds everything needed to mail a document to a Kindle
type Credentials struct {
	KindleAddress string
	SenderAddress string
	SenderSecret  string
	SMTPHost      string
	SMTPPort      int
}

// LogValue keeps the sender secret and full addresses out of log output.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("to", MaskEmail(c.KindleAddress)),
		slog.String("from", MaskEmail(c.SenderAddress)),
		slog.String("smtp_server", c.SMTPHost),
		slog.Int("smtp_port", c.SMTPPort),
	)
}

// OutcomeKind represents the terminal state of one delivery
type OutcomeKind int

const (
	OutcomeSent OutcomeKind = iota
	OutcomeInvalidURL
	OutcomeExtractionFailed
	OutcomeAuthFailed
	OutcomeSendFailed
	OutcomeCanceled
	OutcomeMissingCredentials
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSent:
		return "sent"
	case OutcomeInvalidURL:
		return "invalid_url"
	case OutcomeExtractionFailed:
		return "extraction_failed"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeSendFailed:
		return "send_failed"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeMissingCredentials:
		return "missing_credentials"
	default:
		return "unknown"
	}
}

// Outcome tracks the result of delivering one URL
type Outcome struct {
	Kind  OutcomeKind
	URL   string
	Title string
	Err   error
}

// OK reports whether the article was sent.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSent
}
