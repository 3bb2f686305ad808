// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Output raw JSON"}
}

// configCommand manages the configuration file
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file commands",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the default configuration to --config",
				Action: r.ConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the effective configuration",
				Action: r.ConfigShow,
			},
		},
	}
}

// setupCommand handles database setup
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles authentication operations
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage authentication",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Sign in with email and password",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
					&cli.StringFlag{Name: "password", Usage: "Account password (prompted when omitted)"},
				},
				Action: r.AuthLogin,
			},
			{
				Name:  "register",
				Usage: "Create an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Username"},
					&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email"},
					&cli.StringFlag{Name: "password", Usage: "Account password (prompted when omitted)"},
					&cli.StringFlag{Name: "code", Usage: "Verification code from 'pwatch auth send-code'"},
					&cli.BoolFlag{Name: "login", Usage: "Sign in after registering"},
				},
				Action: r.AuthRegister,
			},
			{
				Name:      "send-code",
				Usage:     "Email a registration verification code",
				ArgsUsage: "<email>",
				Action:    r.AuthSendCode,
			},
			{
				Name:  "oauth",
				Usage: "Sign in through the browser",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "provider", Usage: "OAuth provider (default from config)"},
					&cli.BoolFlag{Name: "no-browser", Usage: "Print the login URL instead of opening it"},
				},
				Action: r.AuthOAuth,
			},
			{
				Name:  "telegram",
				Usage: "Sign in with a Telegram identity",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "telegram-id", Usage: "Telegram user ID", Required: true},
					&cli.StringFlag{Name: "phone", Usage: "Phone number"},
					&cli.StringFlag{Name: "username", Usage: "Telegram username"},
					&cli.StringFlag{Name: "first-name", Usage: "First name"},
					&cli.StringFlag{Name: "last-name", Usage: "Last name"},
				},
				Action: r.AuthTelegram,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and forget the stored token",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show the current session",
				Flags:  []cli.Flag{jsonFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// productCommand looks up a marketplace product
func productCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "product",
		Usage:     "Look up a product by article number",
		ArgsUsage: "<article>",
		Flags:     []cli.Flag{jsonFlag()},
		Action:    r.Product,
	}
}

// watchCommand manages price watches
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "watch",
		Aliases: []string{"w"},
		Usage:   "Manage price watches",
		Commands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Watch a product for a target price",
				ArgsUsage: "<article>",
				Flags: []cli.Flag{
					&cli.FloatFlag{Name: "target-price", Aliases: []string{"t"}, Usage: "Notify at or below this price", Required: true},
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Custom name for the watch"},
				},
				Action: r.WatchAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List saved watches",
				Flags:   []cli.Flag{jsonFlag()},
				Action:  r.WatchList,
			},
		},
	}
}

// historyCommand shows and exports price history
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Show a watch's price history",
		ArgsUsage: "<tracking-id>",
		Flags: []cli.Flag{
			jsonFlag(),
			&cli.BoolFlag{Name: "csv", Usage: "Output CSV"},
			&cli.BoolFlag{Name: "markdown", Aliases: []string{"md"}, Usage: "Output a Markdown table"},
			&cli.BoolFlag{Name: "no-chart", Usage: "Skip the price chart"},
		},
		Action: r.History,
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Export every watch's history to CSV files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "dir", Aliases: []string{"o"}, Usage: "Output directory (default: pwatch_export_{epoch})"},
					&cli.IntFlag{Name: "workers", Usage: "Concurrent downloads", Value: 4},
					&cli.FloatFlag{Name: "rate", Usage: "History requests per second", Value: 5},
				},
				Action: r.HistoryExport,
			},
			{
				Name:  "exports",
				Usage: "List previously exported files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tracking", Usage: "Only exports of this tracking ID"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 20},
				},
				Action: r.HistoryExports,
			},
		},
	}
}

// healthCommand checks the service
func healthCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check that the price service is reachable",
		Action: r.Health,
	}
}

// tuiCommand returns the top-level TUI command for the interactive dashboard.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive price dashboard",
		Action:  r.TUI,
	}
}
