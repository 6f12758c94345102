package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/rs/zerolog/log"

	"speakwell/internal/bootstrap"
	"speakwell/internal/config"
	"speakwell/internal/domain"
	"speakwell/internal/observability/logging"
)

type globalFlags struct {
	configPath   string
	logLevel     string
	logFormat    string
	userID       string
	physioUserID string
	metricsAddr  string
	mute         bool
}

// applyFlags layers command line overrides on top of the loaded configuration.
// A --user override also moves the physio identity when it was only defaulted
// from the speech identity.
func applyFlags(cfg *config.Config, flags globalFlags) {
	if flags.logLevel != "" {
		cfg.Observability.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Observability.LogFormat = flags.logFormat
	}
	if flags.metricsAddr != "" {
		cfg.Observability.MetricsAddr = flags.metricsAddr
	}
	if flags.mute {
		cfg.Speech.Mute = true
	}
	if flags.userID != "" {
		if cfg.Users.PhysioUserID == cfg.Users.SpeechUserID {
			cfg.Users.PhysioUserID = flags.userID
		}
		cfg.Users.SpeechUserID = flags.userID
	}
	if flags.physioUserID != "" {
		cfg.Users.PhysioUserID = flags.physioUserID
	}
}

func main() {
	var flags globalFlags

	app := kingpin.New("speakwell", "Speech and physiotherapy practice from the terminal.")
	app.Flag("config", "Configuration file (default ~/.config/speakwell/config.yaml).").
		Envar("SPEAKWELL_CONFIG").
		StringVar(&flags.configPath)
	app.Flag("log.level", "Log level: debug, info, warn, error.").
		StringVar(&flags.logLevel)
	app.Flag("log.format", "Log format: console or json.").
		EnumVar(&flags.logFormat, "console", "json")
	app.Flag("user", "Speech user id; keys the progress store.").
		StringVar(&flags.userID)
	app.Flag("physio-user", "Physio user id; defaults to --user.").
		StringVar(&flags.physioUserID)
	app.Flag("metrics.addr", "Serve Prometheus metrics on this address.").
		StringVar(&flags.metricsAddr)

	practice := app.Command("practice", "Record and score speech exercises.")
	practiceType := practice.Flag("type", "Exercise type, e.g. lisp or stuttering.").Default("general").String()
	practiceCount := practice.Flag("count", "Number of exercises to fetch.").Default("5").Int()
	practice.Flag("mute", "Do not read feedback aloud.").BoolVar(&flags.mute)

	physio := app.Command("physio", "Stream the webcam to the physio service until Ctrl-C.")
	frameOut := physio.Flag("frame-out", "Write the latest annotated frame to this file.").String()

	physioProgress := app.Command("physio-progress", "Show physio session totals.")

	history := app.Command("history", "List recent practice results.")
	historyLimit := history.Flag("limit", "Number of results.").Default("20").Int()

	weakAreas := app.Command("weak-areas", "Show exercise types averaging below 70.")

	progress := app.Command("progress", "Show practice statistics per day.")
	progressDays := progress.Flag("days", "Days to include.").Default("30").Int()

	chat := app.Command("chat", "Chat with the speech coach.")

	contact := app.Command("contact", "Send a message to support.")
	contactName := contact.Flag("name", "Your name.").String()
	contactEmail := contact.Flag("email", "Your email address.").String()
	contactMessage := contact.Flag("message", "The message.").String()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(flags.configPath)
	app.FatalIfError(err, "load configuration")
	applyFlags(&cfg, flags)

	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := os.Stdout
	sink := newConsoleSink(out, *frameOut)
	services, err := bootstrap.Build(ctx, cfg, sink)
	if err != nil {
		log.Error().Err(err).Msg("Startup failed")
		fmt.Fprintf(os.Stderr, "error: %s: %v\n", errorMessage(domain.ErrorCodeStartup, ""), err)
		os.Exit(1)
	}

	err = run(ctx, command, services, out, commandArgs{
		practice:       practice.FullCommand(),
		practiceType:   *practiceType,
		practiceCount:  *practiceCount,
		physio:         physio.FullCommand(),
		rendered:       sink,
		physioProgress: physioProgress.FullCommand(),
		history:        history.FullCommand(),
		historyLimit:   *historyLimit,
		weakAreas:      weakAreas.FullCommand(),
		progress:       progress.FullCommand(),
		progressDays:   *progressDays,
		chat:           chat.FullCommand(),
		contact:        contact.FullCommand(),
		contactMsg: domain.ContactMessage{
			Name:    *contactName,
			Email:   *contactEmail,
			Message: *contactMessage,
		},
	})
	if closeErr := services.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("Shutdown was not clean")
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type commandArgs struct {
	practice       string
	practiceType   string
	practiceCount  int
	physio         string
	rendered       frameCounter
	physioProgress string
	history        string
	historyLimit   int
	weakAreas      string
	progress       string
	progressDays   int
	chat           string
	contact        string
	contactMsg     domain.ContactMessage
}

func run(ctx context.Context, command string, services *bootstrap.Services, out io.Writer, args commandArgs) error {
	switch command {
	case args.practice:
		status, err := services.Recording.LoadExercises(ctx, args.practiceType, args.practiceCount)
		if err != nil {
			return err
		}
		if status.Total == 1 && status.Prompt == domain.FallbackPrompt {
			fmt.Fprintln(out, "No exercises available, using a general prompt.")
		}
		return runPractice(ctx, services.Recording, out)

	case args.physio:
		return runPhysio(ctx, services.Streaming, args.rendered, services.Config.Session.ControlTimeout, out)

	case args.physioProgress:
		report, err := services.Streaming.ProgressReport(ctx)
		if errors.Is(err, domain.ErrNoProgress) {
			fmt.Fprintln(out, "No physio sessions yet.")
			return nil
		}
		if err != nil {
			return err
		}
		return printPhysioProgress(out, report)

	case args.history:
		records, err := services.Dashboard.History(ctx, args.historyLimit)
		if err != nil {
			return err
		}
		return printHistory(out, records)

	case args.weakAreas:
		areas, err := services.Dashboard.WeakAreas(ctx)
		if err != nil {
			return err
		}
		return printWeakAreas(out, areas)

	case args.progress:
		stats, err := services.Dashboard.Stats(ctx)
		if err != nil {
			return err
		}
		daily, err := services.Dashboard.Progress(ctx, args.progressDays)
		if err != nil {
			return err
		}
		return printProgress(out, stats, daily)

	case args.chat:
		return runChat(ctx, services.Assistant, out)

	case args.contact:
		msg := args.contactMsg
		for _, field := range []struct {
			value *string
			name  string
		}{
			{&msg.Name, "your name"},
			{&msg.Email, "your email"},
			{&msg.Message, "your message"},
		} {
			if err := promptIfEmpty(field.value, field.name); err != nil {
				return err
			}
		}
		if err := services.Assistant.SendContactMessage(ctx, msg); err != nil {
			return err
		}
		fmt.Fprintln(out, "Message sent. We'll get back to you soon.")
		return nil

	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
