// submodule cmd contains command definitions
package main

import (
	"github.com/nknaian/musicorg/internal/shared"
	"github.com/urfave/cli/v3"
)

const (
	envPrefix         = "ALBUMCOLLECTIONS_"
	defaultConfigPath = "config.toml"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   defaultConfigPath,
		Sources: cli.EnvVars(envPrefix + "CONFIG"),
	}
}

func logLevelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		Sources: cli.EnvVars(envPrefix + "LOG_LEVEL"),
	}
}

// serveCommand starts the web server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "Interface to listen on",
				Sources: cli.EnvVars(envPrefix + "HOST"),
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on",
				Sources: cli.EnvVars(envPrefix+"PORT", "PORT"),
			},
			&cli.StringFlag{
				Name:    "database",
				Usage:   "Path to the SQLite database",
				Sources: cli.EnvVars(envPrefix + "DATABASE"),
			},
			&cli.StringFlag{
				Name:    "client-id",
				Usage:   "Spotify client id",
				Sources: cli.EnvVars(envPrefix+"SPOTIFY_CLIENT_ID", "SPOTIFY_ID"),
			},
			&cli.StringFlag{
				Name:    "client-secret",
				Usage:   "Spotify client secret",
				Sources: cli.EnvVars(envPrefix+"SPOTIFY_CLIENT_SECRET", "SPOTIFY_SECRET"),
			},
			&cli.StringFlag{
				Name:    "redirect-uri",
				Usage:   "OAuth2 redirect URI registered with Spotify",
				Sources: cli.EnvVars(envPrefix + "SPOTIFY_REDIRECT_URI"),
			},
			&cli.StringFlag{
				Name:    "session-secret",
				Usage:   "Key used to sign session cookies",
				Sources: cli.EnvVars(envPrefix + "SESSION_SECRET"),
			},
			&cli.StringFlag{
				Name:    "public-url",
				Usage:   "Public address of the site, named in generated playlists",
				Sources: cli.EnvVars(envPrefix + "PUBLIC_URL"),
			},
			&cli.StringFlag{
				Name:    "sentry-dsn",
				Usage:   "Sentry DSN for error reporting",
				Sources: cli.EnvVars(envPrefix+"SENTRY_DSN", "SENTRY_DSN"),
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for the configuration file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a configuration file from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// sessionsCommand handles stored browser sessions.
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage stored sessions",
		Commands: []*cli.Command{
			{
				Name:  "prune",
				Usage: "Delete expired sessions",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SessionsPrune,
			},
		},
	}
}

// applyOverrides copies flags that were set on the command line or in the environment onto config.
func applyOverrides(cmd *cli.Command, config *shared.Config) {
	fields := map[string]*string{
		"host":           &config.Server.Host,
		"database":       &config.Database.Path,
		"client-id":      &config.Credentials.Spotify.ClientID,
		"client-secret":  &config.Credentials.Spotify.ClientSecret,
		"redirect-uri":   &config.Credentials.Spotify.RedirectURI,
		"session-secret": &config.Server.SessionSecret,
		"public-url":     &config.Server.PublicURL,
		"sentry-dsn":     &config.Sentry.DSN,
	}
	for name, field := range fields {
		if cmd.IsSet(name) {
			*field = cmd.String(name)
		}
	}

	if cmd.IsSet("port") {
		config.Server.Port = int(cmd.Int("port"))
	}
	if cmd.IsSet("log-level") {
		config.Log.Level = cmd.String("log-level")
	}
}
