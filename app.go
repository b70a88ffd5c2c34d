package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/jp1648/portfolio/internal/catalog"
	"github.com/jp1648/portfolio/internal/config"
	"github.com/jp1648/portfolio/internal/contact"
	"github.com/jp1648/portfolio/internal/content"
	"github.com/jp1648/portfolio/internal/database"
	"github.com/jp1648/portfolio/internal/github"
	"github.com/jp1648/portfolio/internal/storage"
	"github.com/jp1648/portfolio/internal/visits"
)

// app holds everything the server and the CLI commands share.
type app struct {
	cfg     *config.Config
	db      *sql.DB
	store   storage.Store
	catalog *catalog.Service
	site    *content.Site
	mailer  contact.Mailer
	tracker *visits.Tracker
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(ctx, cfg.Cache, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s cache: %w", cfg.Cache.Backend, err)
	}

	site, err := content.Load(cfg.App.ContentPath)
	if err != nil {
		store.Close()
		db.Close()
		return nil, err
	}

	tracker, err := visits.NewTracker(ctx, db)
	if err != nil {
		store.Close()
		db.Close()
		return nil, err
	}

	client := github.NewClient(cfg.GitHub.APIBaseURL, cfg.GitHub.Token, cfg.GitHub.Timeout)
	if cfg.GitHub.Token == "" {
		log.Println("GITHUB_TOKEN not set, project catalog requests are unauthenticated")
	}

	cache := catalog.NewCache(store, cfg.Cache.Key, cfg.Cache.MaxAge)
	svc := catalog.NewService(client, cache, catalog.Options{
		DefaultOwner: cfg.GitHub.Owner,
		ExcludedName: cfg.GitHub.ExcludedRepo,
	})

	return &app{
		cfg:     cfg,
		db:      db,
		store:   store,
		catalog: svc,
		site:    site,
		mailer:  contact.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.To),
		tracker: tracker,
	}, nil
}

func (a *app) Close() error {
	if a.tracker != nil {
		a.tracker.Wait()
	}
	if err := a.store.Close(); err != nil {
		log.Printf("Error closing cache store: %v", err)
	}
	return a.db.Close()
}
