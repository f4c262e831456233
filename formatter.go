package main

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"unicode/utf8"
)

//go:embed config/article.html.tmpl
var articleTemplateText string

var articleTemplate = template.Must(template.New("article").Parse(articleTemplateText))

const (
	savedDateLayout  = "January 2, 2006"
	maxFilenameRunes = 100
)

type documentData struct {
	Title     string
	Byline    string
	SiteName  string
	SourceURL string
	Saved     string
	Body      template.HTML
}

// FormatDocument wraps an article in a self-contained HTML document.
// The output depends only on the article, so equal articles produce
// byte-identical documents.
func FormatDocument(article *Article) (*Document, error) {
	data := documentData{
		Title:     article.Title,
		Byline:    article.Byline,
		SiteName:  article.SiteName,
		SourceURL: article.SourceURL,
		Saved:     article.SavedAt.UTC().Format(savedDateLayout),
		// Body was produced by cleanArticleHTML and is emitted verbatim.
		Body: template.HTML(article.Body),
	}

	var buf bytes.Buffer
	if err := articleTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering document: %w", err)
	}

	return &Document{
		Title:    article.Title,
		Filename: sanitizeFilename(article.Title) + ".html",
		HTML:     buf.Bytes(),
	}, nil
}

var filenameReplacer = strings.NewReplacer(
	"<", "", ">", "", ":", "", `"`, "", "/", "", `\`, "", "|", "", "?", "", "*", "",
	"'", "", "‘", "", "’", "", "“", "", "”", "",
)

// sanitizeFilename removes characters that break attachment names.
func sanitizeFilename(title string) string {
	name := filenameReplacer.Replace(title)
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)

	if utf8.RuneCountInString(name) > maxFilenameRunes {
		name = strings.TrimSpace(string([]rune(name)[:maxFilenameRunes]))
	}
	if name == "" {
		return defaultTitle
	}
	return name
}
