package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
)

type options struct {
	appMode      bool
	envFile      string
	settingsPath string
	logFile      string
	debug        bool
	notify       bool
}

// environment holds the process-level collaborators commands use. Tests
// replace them with fakes.
type environment struct {
	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	secrets   SecretStore
	clipboard clipboardReader
	prompter  Prompter
	configDir string // empty means the per-user default
	goos      string
}

func defaultEnvironment() *environment {
	return &environment{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		secrets:   KeyringStore{},
		clipboard: systemClipboard,
		goos:      runtime.GOOS,
	}
}

func (e *environment) promptUser() Prompter {
	if e.prompter == nil {
		e.prompter = newReadlinePrompter(e.stdin, e.stdout)
	}
	return e.prompter
}

func newRootCmd(env *environment) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "kindle-send [url]",
		Short: "Send web articles to your Kindle",
		Long: `kindle-send fetches a web article, extracts its readable content and mails
it to your Kindle address as an HTML document.

Credentials come from KINDLE_EMAIL, SMTP_EMAIL and SMTP_PASSWORD (optionally
SMTP_SERVER and SMTP_PORT), or with --app from the settings saved by
"kindle-send settings" and the OS keychain.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, env, opts, args)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "kindle-send version %s\n" .Version}}`)
	rootCmd.SetIn(env.stdin)
	rootCmd.SetOut(env.stdout)
	rootCmd.SetErr(env.stderr)

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&opts.appMode, "app", false, "Use saved settings and the OS keychain instead of environment variables")
	flags.StringVar(&opts.envFile, "env-file", "", "Load environment variables from this file (default .env if present)")
	flags.StringVar(&opts.settingsPath, "settings", "", "Path to a settings YAML file")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to this file")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&opts.notify, "notify", false, "Show desktop notifications (macOS)")

	rootCmd.AddCommand(newSendCmd(env, opts))
	rootCmd.AddCommand(newClipboardCmd(env, opts))
	rootCmd.AddCommand(newSettingsCmd(env, opts))
	rootCmd.AddCommand(newMigrateCmd(env, opts))
	rootCmd.AddCommand(newPreviewCmd(env, opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newSendCmd(env *environment, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send [url]",
		Short: "Send an article to your Kindle (prompts for the URL when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, env, opts, args)
		},
	}
}

func newClipboardCmd(env *environment, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clipboard",
		Short: "Send the URL currently on the clipboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(env, opts)
			if err != nil {
				return err
			}
			defer a.close()

			rawURL, err := urlFromClipboard(env.clipboard)
			if err != nil {
				a.logger.Warn("invalid clipboard url", Err(err))
				return a.finish(cmd.Context(), Outcome{Kind: classifyError(err, OutcomeInvalidURL), Err: err})
			}
			a.logger.Info("clipboard url detected", URL(rawURL))
			return a.deliver(cmd.Context(), rawURL)
		},
	}
}

func newSettingsCmd(env *environment, opts *options) *cobra.Command {
	var (
		smtpServer string
		smtpPort   int
	)
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Save your Kindle address, sender address and app password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(env, opts)
			if err != nil {
				return err
			}
			defer a.close()

			src, err := a.appSource()
			if err != nil {
				return err
			}
			rec, hasSecret, err := src.Current(cmd.Context())
			if err != nil {
				return err
			}

			p := env.promptUser()
			kindle, err := p.Prompt("Kindle email address (e.g. yourname@kindle.com):", rec.KindleEmail)
			if err != nil {
				return a.finish(cmd.Context(), Outcome{Kind: classifyError(err, OutcomeCanceled), Err: err})
			}
			sender, err := p.Prompt("Gmail address:", rec.SMTPEmail)
			if err != nil {
				return a.finish(cmd.Context(), Outcome{Kind: classifyError(err, OutcomeCanceled), Err: err})
			}
			label := "Gmail app password (get one at myaccount.google.com/apppasswords):"
			if hasSecret && sender == rec.SMTPEmail {
				label = "Gmail app password (leave blank to keep current):"
			}
			password, err := p.Password(label)
			if err != nil {
				return a.finish(cmd.Context(), Outcome{Kind: classifyError(err, OutcomeCanceled), Err: err})
			}

			err = src.SaveSettings(cmd.Context(), SettingsInput{
				KindleEmail: kindle,
				SMTPEmail:   sender,
				SMTPServer:  smtpServer,
				SMTPPort:    smtpPort,
				Password:    password,
			})
			if err != nil {
				return fmt.Errorf("saving settings: %w", err)
			}
			if err := ensureSettingsFile(a.configDir); err != nil {
				a.logger.Warn("failed to write default settings file", Err(err))
			}

			a.notifier.Notify(cmd.Context(), Notification{Title: appName, Subtitle: "Settings saved"})
			fmt.Fprintf(env.stdout, "Settings saved to %s\n", filepath.Join(a.configDir, configFileName))
			return nil
		},
	}
	cmd.Flags().StringVar(&smtpServer, "smtp-server", "", "SMTP server (default smtp.gmail.com)")
	cmd.Flags().IntVar(&smtpPort, "smtp-port", 0, "SMTP port (default 587)")
	return cmd
}

func newMigrateCmd(env *environment, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Move a plaintext password from the config file into the OS keychain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(env, opts)
			if err != nil {
				return err
			}
			defer a.close()

			src, err := a.appSource()
			if err != nil {
				return err
			}
			migrated, err := src.Migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrating password: %w", err)
			}
			if migrated {
				fmt.Fprintln(env.stdout, "Migrated SMTP password to the OS keychain")
			} else {
				fmt.Fprintln(env.stdout, "Nothing to migrate")
			}
			return nil
		},
	}
}

func newPreviewCmd(env *environment, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <url>",
		Short: "Print the extracted article as Markdown without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(env, opts)
			if err != nil {
				return err
			}
			defer a.close()

			article, err := NewContentFetcher(a.settings.Fetch, a.logger).Extract(cmd.Context(), args[0])
			if err != nil {
				return Outcome{Kind: classifyError(err, OutcomeExtractionFailed), URL: args[0], Err: err}
			}
			text, err := renderMarkdown(article)
			if err != nil {
				return err
			}
			_, err = io.WriteString(env.stdout, text)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kindle-send version %s\n", version)
		},
	}
}

func runSend(cmd *cobra.Command, env *environment, opts *options, args []string) error {
	a, err := newApp(env, opts)
	if err != nil {
		return err
	}
	defer a.close()

	if len(args) == 1 {
		return a.deliver(cmd.Context(), args[0])
	}

	rawURL, err := promptForURL(env.promptUser())
	if err != nil {
		a.logger.Info("action canceled", Err(err))
		return a.finish(cmd.Context(), Outcome{Kind: classifyError(err, OutcomeCanceled), Err: err})
	}
	return a.deliver(cmd.Context(), rawURL)
}

// app is the per-invocation wiring shared by the commands
type app struct {
	env       *environment
	opts      *options
	settings  *Settings
	configDir string
	logger    *slog.Logger
	notifier  Notifier
	closers   []io.Closer
}

func newApp(env *environment, opts *options) (*app, error) {
	a := &app{env: env, opts: opts}

	SetDebugMode(opts.debug)
	logPath := opts.logFile
	if logPath == "" && opts.appMode {
		logPath = defaultLogPath()
	}
	if logPath != "" {
		f, err := openLogFile(logPath)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		a.closers = append(a.closers, f)
		a.logger = newLogger(f)
	} else {
		if !opts.debug {
			logLevel.Set(slog.LevelWarn)
		}
		a.logger = newLogger(env.stderr)
	}

	a.configDir = env.configDir
	if a.configDir == "" {
		dir, err := appConfigDir()
		if err != nil {
			return nil, err
		}
		a.configDir = dir
	}

	var err error
	if opts.settingsPath != "" {
		a.settings, err = loadSettingsRequired(opts.settingsPath)
	} else {
		a.settings, err = loadSettings(filepath.Join(a.configDir, settingsFileName))
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	a.notifier = newNotifier(opts.notify, env.goos, a.logger)
	return a, nil
}

func (a *app) close() {
	for _, c := range a.closers {
		c.Close()
	}
}

func (a *app) appSource() (*AppSource, error) {
	if a.env.secrets == nil {
		return nil, fmt.Errorf("no secret store available")
	}
	config := NewConfigFile(filepath.Join(a.configDir, configFileName))
	return NewAppSource(config, a.env.secrets, a.logger), nil
}

func (a *app) resolver() (CredentialResolver, error) {
	if a.opts.appMode {
		return a.appSource()
	}
	return NewEnvSource(a.opts.envFile), nil
}

func (a *app) deliver(ctx context.Context, rawURL string) error {
	resolver, err := a.resolver()
	if err != nil {
		return a.finish(ctx, Outcome{Kind: OutcomeMissingCredentials, URL: rawURL, Err: err})
	}

	processor := NewArticleProcessor(
		resolver,
		NewContentFetcher(a.settings.Fetch, a.logger),
		NewMailer(a.settings.SMTP, a.logger),
		a.logger,
	)
	processor.SetProgress(func(format string, args ...any) {
		fmt.Fprintf(a.env.stdout, format+"\n", args...)
	})

	a.notifier.Notify(ctx, startingNotification)
	return a.finish(ctx, processor.Deliver(ctx, rawURL))
}

// finish shows the outcome and turns failures into the command error.
func (a *app) finish(ctx context.Context, outcome Outcome) error {
	a.notifier.Notify(ctx, outcome.Notification())
	if outcome.OK() {
		return nil
	}
	return outcome
}
