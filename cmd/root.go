package cmd

import (
	"context"
	"fmt"
	"os"

	"SceneToVideo-server/config"
	"SceneToVideo-server/models"
	"SceneToVideo-server/service"
	"SceneToVideo-server/service/generation"
	"SceneToVideo-server/service/videoapi"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type app struct {
	cfgPath string
	cfg     *config.Config
}

func Root() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:          "scene-video",
		Short:        "scene video generation service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", config.DefaultPath, "path to the YAML config file")
	rootCmd.AddCommand(server(a), generate(a))
	return rootCmd
}

func setupLogger(cfg *config.Config) context.Context {
	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	log.Logger = logger
	return logger.WithContext(context.Background())
}

type deps struct {
	store   *models.Store
	storage *service.Storage
	engine  *generation.Engine
}

func wire(cfg *config.Config) (*deps, error) {
	db, err := models.OpenDB(cfg.MySQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	store := models.NewStore(db)

	storage, err := service.NewStorage(cfg.MinIO)
	if err != nil {
		return nil, err
	}

	backend := videoapi.NewClient(cfg.Backend, cfg.Generation)
	engine := generation.NewEngine(cfg.Generation, cfg.Backend.Model, backend, store, storage)
	return &deps{store: store, storage: storage, engine: engine}, nil
}
