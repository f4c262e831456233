package main

import (
	"context"
	"log/slog"
)

// ArticleExtractor turns a URL into an article
type ArticleExtractor interface {
	Extract(ctx context.Context, rawURL string) (*Article, error)
}

// DocumentSender delivers a formatted document
type DocumentSender interface {
	Send(ctx context.Context, creds Credentials, doc *Document) error
}

// ArticleProcessor handles the main workflow:
// resolve credentials, extract, format, send.
// It is not reentrant; run one delivery at a time per config record.
type ArticleProcessor struct {
	resolver  CredentialResolver
	extractor ArticleExtractor
	sender    DocumentSender
	logger    *slog.Logger
	progress  func(format string, args ...any)
}

// NewArticleProcessor creates a new processor from its collaborators
func NewArticleProcessor(resolver CredentialResolver, extractor ArticleExtractor, sender DocumentSender, logger *slog.Logger) *ArticleProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleProcessor{
		resolver:  resolver,
		extractor: extractor,
		sender:    sender,
		logger:    logger,
	}
}

// SetProgress installs a printf-style sink for human-readable progress lines
func (ap *ArticleProcessor) SetProgress(progress func(format string, args ...any)) {
	ap.progress = progress
}

// Deliver runs the pipeline once for rawURL. Any failing step ends the run
// with the matching outcome; nothing is retried.
func (ap *ArticleProcessor) Deliver(ctx context.Context, rawURL string) Outcome {
	logger := ap.logger.With(URL(rawURL))

	// Reject malformed input before touching the config file or secret store.
	u, err := ParseArticleURL(rawURL)
	if err != nil {
		return ap.fail(logger, "validate", rawURL, err, OutcomeInvalidURL)
	}
	rawURL = u.String()

	creds, err := ap.resolver.Resolve(ctx)
	if err != nil {
		return ap.fail(logger, "resolve", rawURL, err, OutcomeMissingCredentials)
	}

	ap.report("Fetching: %s", rawURL)
	logger.Info("extraction start")
	article, err := ap.extractor.Extract(ctx, rawURL)
	if err != nil {
		return ap.fail(logger, "extract", rawURL, err, OutcomeExtractionFailed)
	}
	logger.Info("extraction end", slog.String("title", article.Title), slog.Int("extracted_chars", len(article.Body)))
	ap.report("Extracted: %s", article.Title)

	logger.Info("conversion start", slog.String("title", article.Title))
	doc, err := FormatDocument(article)
	if err != nil {
		err = &ExtractionError{URL: rawURL, Step: "format", Err: err}
		return ap.fail(logger, "format", rawURL, err, OutcomeExtractionFailed)
	}
	logger.Info("conversion end", slog.String("title", article.Title), slog.Int("html_chars", len(doc.HTML)))

	ap.report("Sending to: %s", creds.KindleAddress)
	if err := ap.sender.Send(ctx, creds, doc); err != nil {
		return ap.fail(logger, "send", rawURL, err, OutcomeSendFailed)
	}

	ap.report("✓ Sent successfully")
	logger.Info("delivery complete", slog.String(KeyStatus, OutcomeSent.String()))
	return Outcome{Kind: OutcomeSent, URL: rawURL, Title: article.Title}
}

func (ap *ArticleProcessor) fail(logger *slog.Logger, step, rawURL string, err error, fallback OutcomeKind) Outcome {
	kind := classifyError(err, fallback)
	logger.Error("delivery failed",
		slog.String("step", step),
		slog.String(KeyStatus, kind.String()),
		Err(err))
	return Outcome{Kind: kind, URL: rawURL, Err: err}
}

func (ap *ArticleProcessor) report(format string, args ...any) {
	if ap.progress != nil {
		ap.progress(format, args...)
	}
}
