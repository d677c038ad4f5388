package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/kalambet/gettor/internal/classify"
	"github.com/kalambet/gettor/internal/composer"
	"github.com/kalambet/gettor/internal/config"
	"github.com/kalambet/gettor/internal/deliver"
	"github.com/kalambet/gettor/internal/flood"
	"github.com/kalambet/gettor/internal/fulfill"
	"github.com/kalambet/gettor/internal/intake"
	"github.com/kalambet/gettor/internal/locale"
	gtlog "github.com/kalambet/gettor/internal/log"
	"github.com/kalambet/gettor/internal/model"
	"github.com/kalambet/gettor/internal/storage"
)

// app holds the components shared by every command.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *storage.Store
	table      *locale.Table
	bundle     *locale.Bundle
	platforms  []model.Platform
	classifier *classify.Classifier
	intake     *intake.Intake
}

// openApp loads the config and builds the shared components. Logs go to
// logOut. The caller must call close.
func openApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return newApp(cfg, logOut)
}

func newApp(cfg config.Config, logOut io.Writer) (*app, error) {
	logger := gtlog.NewLogger(logOut, gtlog.ParseLevel(cfg.Log.Level), gtlog.Format(cfg.Log.Format))
	slog.SetDefault(logger)

	table, err := locale.LoadTable(cfg.Locale.Dir)
	if err != nil {
		return nil, fmt.Errorf("loading locale table: %w", err)
	}
	bundle, err := locale.LoadBundle(cfg.Locale.Dir, cfg.Locale.Default)
	if err != nil {
		return nil, fmt.Errorf("loading locale strings: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	if versions, err := store.AppliedMigrations(); err == nil {
		logger.Debug("storage opened", "data_dir", cfg.Storage.DataDir, "migrations", versions)
	}

	platforms := make([]model.Platform, len(cfg.Platforms))
	for i, p := range cfg.Platforms {
		platforms[i] = model.Platform(p)
	}
	classifier := classify.New(table.Codes(), platforms, cfg.Locale.Default)

	opts := []classify.EmailOption{classify.WithServiceAddress(cfg.Email.Address)}
	if cfg.Email.DKIMRequired {
		opts = append(opts, classify.WithVerifier(classify.AuthResultsVerifier{AuthServID: cfg.Email.AuthServID}))
	}

	guard := flood.NewGuard(store, flood.Limits{
		model.ChannelEmail: cfg.Email.RequestsLimit,
		model.ChannelDM:    cfg.DM.RequestsLimit,
	}, cfg.Flood.TestHID)
	guard.SetLogger(logger)

	in := intake.New(classifier, classify.NewEmailParser(classifier, opts...), guard, store)
	in.SetLogger(logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		table:      table,
		bundle:     bundle,
		platforms:  platforms,
		classifier: classifier,
		intake:     in,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("closing storage", "error", err)
	}
}

// enabled reports whether ch has a delivery endpoint configured.
func (a *app) enabled(ch model.Channel) bool {
	switch ch {
	case model.ChannelEmail:
		return a.cfg.Email.SMTPHost != ""
	case model.ChannelDM:
		return a.cfg.DM.APIURL != ""
	default:
		return false
	}
}

func (a *app) newSender(ch model.Channel) (deliver.Sender, time.Duration, error) {
	switch ch {
	case model.ChannelEmail:
		s, err := deliver.NewSMTPSender(deliver.SMTPConfig{
			Host:     a.cfg.Email.SMTPHost,
			Port:     a.cfg.Email.SMTPPort,
			Username: a.cfg.Email.SMTPUsername,
			Password: a.cfg.Email.SMTPPassword,
			From:     a.cfg.Email.Address,
		})
		return s, a.cfg.Email.Interval, err
	case model.ChannelDM:
		s, err := deliver.NewDMSender(deliver.DMConfig{
			APIURL:     a.cfg.DM.APIURL,
			Token:      a.cfg.DM.APIToken,
			SOCKSProxy: a.cfg.DM.SOCKSProxy,
		})
		return s, a.cfg.DM.Interval, err
	default:
		return nil, 0, fmt.Errorf("unknown channel %q", ch)
	}
}

// newWorker builds the fulfillment worker for ch.
func (a *app) newWorker(ch model.Channel) (*fulfill.Worker, error) {
	sender, interval, err := a.newSender(ch)
	if err != nil {
		return nil, fmt.Errorf("%s sender: %w", ch, err)
	}
	w := fulfill.NewWorker(fulfill.Config{
		Channel:       ch,
		Interval:      interval,
		DefaultLocale: a.cfg.Locale.Default,
		Locales:       a.table.Codes(),
		MaxAttempts:   a.cfg.Fulfill.MaxAttempts,
	}, a.store, a.store, composer.New(a.platforms, a.table), a.bundle, sender)
	w.SetLogger(a.logger)
	return w, nil
}

func parseChannel(s string) (model.Channel, error) {
	ch := model.Channel(s)
	if !ch.IsValid() {
		return "", fmt.Errorf("unknown channel %q (want email or dm)", s)
	}
	return ch, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
