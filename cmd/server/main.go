package main

import (
	"fmt"
	"log"

	"gioland/internal/auth"
	"gioland/internal/config"
	"gioland/internal/definitions"
	"gioland/internal/email"
	noopmail "gioland/internal/email/noop"
	sesmail "gioland/internal/email/ses"
	"gioland/internal/event"
	"gioland/internal/handler"
	"gioland/internal/notification"
	"gioland/internal/router"
	"gioland/internal/service"
	"gioland/internal/warehouse"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := definitions.ValidateGraphs(); err != nil {
		return fmt.Errorf("stage graph definitions are broken: %w", err)
	}

	wh, err := warehouse.Open(cfg.Warehouse.Path)
	if err != nil {
		return fmt.Errorf("failed to open warehouse at %s: %w", cfg.Warehouse.Path, err)
	}
	defer wh.Close()

	authSvc := auth.NewService(auth.Config{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiry,
		Issuer: cfg.JWT.Issuer,
	}, cfg.Auth.DomainAccounts(), cfg.Auth.Roles, auth.StaticDirectory(cfg.Auth.Groups))

	// UNS dispatcher when a channel is configured, local-only otherwise
	var dispatcher notification.Dispatcher = notification.NoopDispatcher{}
	if cfg.UNS.URL != "" {
		dispatcher = notification.NewUNSDispatcher(notification.UNSConfig{
			URL:       cfg.UNS.URL,
			ChannelID: cfg.UNS.ChannelID,
			Username:  cfg.UNS.Username,
			Password:  cfg.UNS.Password,
		})
	}
	notifier, err := notification.NewNotifier(notification.Config{
		BaseURL:  cfg.Workflow.BaseURL,
		TimeZone: cfg.UNS.TimeZone,
		Suppress: cfg.UNS.Suppress,
	}, dispatcher)
	if err != nil {
		return fmt.Errorf("failed to initialize notifier: %w", err)
	}

	var mail email.Sender
	switch cfg.Email.Provider {
	case "ses":
		mail, err = sesmail.NewSESSender(cfg.Email.Region, cfg.Email.FromAddress, cfg.Email.FromName, cfg.Workflow.BaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize SES sender: %w", err)
		}
	default:
		mail = noopmail.NewNoopSender(cfg.Workflow.BaseURL)
	}

	hub := event.NewHub()

	// Initialize services
	svcCfg := service.Config{
		BaseURL:             cfg.Workflow.BaseURL,
		AllowParcelDeletion: cfg.Workflow.AllowParcelDeletion,
		UploadLockTimeout:   cfg.Workflow.UploadLockTimeout,
		AlertRecipients:     cfg.Workflow.AlertRecipients,
	}
	parcelSvc := service.NewParcelService(wh, authSvc, notifier, hub, mail, svcCfg)
	uploadSvc := service.NewUploadService(wh, authSvc, hub, svcCfg)
	reportSvc := service.NewReportService(wh, authSvc)

	// Initialize handlers
	authH := handler.NewAuthHandler(authSvc)
	parcelH := handler.NewParcelHandler(parcelSvc)
	fileH := handler.NewFileHandler(uploadSvc)
	reportH := handler.NewReportHandler(reportSvc)
	subscribeH := handler.NewSubscribeHandler(notifier)
	healthH := handler.NewHealthHandler(wh)

	// Setup router
	r := router.Setup(authSvc, authH, parcelH, fileH, reportH, subscribeH, healthH)

	log.Printf("Server starting on %s", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}
