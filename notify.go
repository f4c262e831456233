package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"unicode/utf8"
)

const appName = "Keen"

// Notification is a user-visible status message
type Notification struct {
	Title    string
	Subtitle string
	Message  string
}

// startingNotification is shown when a delivery begins
var startingNotification = Notification{Title: appName, Subtitle: "Starting...", Message: "Preparing article for Kindle"}

// Notification renders the outcome the way the menu-bar app shows it.
func (o Outcome) Notification() Notification {
	n := Notification{Title: appName}
	switch o.Kind {
	case OutcomeSent:
		n.Subtitle, n.Message = "Sent ✅", truncateRunes(o.Title, 60)
	case OutcomeInvalidURL:
		var invalid *InvalidURLError
		if errors.As(o.Err, &invalid) && invalid.Reason == reasonBlockedAddress {
			n.Subtitle, n.Message = "Blocked", "URL target is not allowed"
		} else {
			n.Subtitle, n.Message = "Invalid URL", "Please enter a valid http(s) URL"
		}
	case OutcomeCanceled:
		n.Subtitle, n.Message = "Canceled", "Send canceled"
	case OutcomeMissingCredentials:
		n.Subtitle, n.Message = "Error", "Missing email configuration. Go to Settings to configure."
	case OutcomeAuthFailed:
		n.Subtitle, n.Message = "Error", "Authentication failed. Re-enter your app password in Settings."
	default:
		msg := "Something went wrong"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		n.Subtitle, n.Message = "Error", truncateRunes(msg, 120)
	}
	return n
}

// ExitCode is 0 only for a sent article.
func (o Outcome) ExitCode() int {
	if o.OK() {
		return 0
	}
	return 1
}

// Error describes a failed outcome for standard error.
func (o Outcome) Error() string {
	if o.Err == nil {
		return o.Kind.String()
	}
	return fmt.Sprintf("%s: %v", o.Kind, o.Err)
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Notifier shows notifications to the user
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type logNotifier struct {
	logger *slog.Logger
}

func (l logNotifier) Notify(_ context.Context, n Notification) {
	l.logger.Info("notification",
		slog.String("title", n.Title),
		slog.String("subtitle", n.Subtitle),
		slog.String("message", n.Message))
}

// osascriptNotifier posts a macOS banner through AppleScript
type osascriptNotifier struct {
	logger *slog.Logger
	run    func(ctx context.Context, name string, args ...string) error
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (o osascriptNotifier) Notify(ctx context.Context, n Notification) {
	script := fmt.Sprintf(`display notification "%s" with title "%s" subtitle "%s"`,
		appleScriptEscape(truncateRunes(n.Message, 500)),
		appleScriptEscape(truncateRunes(n.Title, 200)),
		appleScriptEscape(truncateRunes(n.Subtitle, 200)))
	if err := o.run(ctx, "/usr/bin/osascript", "-e", script); err != nil {
		o.logger.Warn("failed to display osascript notification", Err(err))
	}
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}

// newNotifier always logs notifications; desktop banners are added when
// enabled on macOS.
func newNotifier(desktop bool, goos string, logger *slog.Logger) Notifier {
	notifiers := multiNotifier{logNotifier{logger: logger}}
	if desktop && goos == "darwin" {
		notifiers = append(notifiers, osascriptNotifier{logger: logger, run: runCommand})
	}
	return notifiers
}
