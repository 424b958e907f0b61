package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	migrateV4 "github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/yourusername/buildle-api/internal/config"
	"github.com/yourusername/buildle-api/pkg/database"
)

func main() {
	app := &cli.App{
		Name:  "migrate",
		Usage: "управление схемой базы данных buildle-api",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config/config.yaml",
				Usage:   "путь к файлу конфигурации",
				EnvVars: []string{"CONFIG_PATH"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "применить все миграции",
				Action: withMigrator(func(_ *cli.Context, m *migrateV4.Migrate) error {
					return ignoreNoChange(m.Up())
				}),
			},
			{
				Name:      "down",
				Usage:     "откатить N миграций (по умолчанию одну)",
				ArgsUsage: "[N]",
				Action: withMigrator(func(c *cli.Context, m *migrateV4.Migrate) error {
					steps := 1
					if c.Args().Present() {
						n, err := strconv.Atoi(c.Args().First())
						if err != nil || n < 1 {
							return fmt.Errorf("invalid number of steps %q", c.Args().First())
						}
						steps = n
					}
					return ignoreNoChange(m.Steps(-steps))
				}),
			},
			{
				Name:      "force",
				Usage:     "записать версию без выполнения миграций (снимает dirty-флаг)",
				ArgsUsage: "VERSION",
				Action: withMigrator(func(c *cli.Context, m *migrateV4.Migrate) error {
					version, err := strconv.Atoi(c.Args().First())
					if err != nil {
						return fmt.Errorf("version is required: %w", err)
					}
					return m.Force(version)
				}),
			},
			{
				Name:  "version",
				Usage: "показать текущую версию схемы",
				Action: withMigrator(func(_ *cli.Context, m *migrateV4.Migrate) error {
					version, dirty, err := m.Version()
					if errors.Is(err, migrateV4.ErrNilVersion) {
						fmt.Println("no migrations applied")
						return nil
					}
					if err != nil {
						return err
					}
					fmt.Printf("version %d (dirty: %t)\n", version, dirty)
					return nil
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
}

// withMigrator открывает базу из конфигурации и передает мигратор в action
func withMigrator(action func(*cli.Context, *migrateV4.Migrate) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadDatabase(c.String("config"))
		if err != nil {
			return err
		}
		db, err := database.Open(cfg)
		if err != nil {
			return err
		}
		sqlDB, err := database.GetSQLDB(db)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		m, err := database.NewMigrator(db, cfg.Driver)
		if err != nil {
			return err
		}
		if err := action(c, m); err != nil {
			return err
		}
		log.Info().Str("command", c.Command.Name).Str("driver", cfg.Driver).Msg("done")
		return nil
	}
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrateV4.ErrNoChange) {
		log.Info().Msg("no change")
		return nil
	}
	return err
}
