package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"

	"github.com/hirosegw/changeboard/pkg/cli/config"
	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
	"github.com/hirosegw/changeboard/pkg/infra/store"
)

type importFile struct {
	Sources []importSource `toml:"sources"`
}

type importSource struct {
	ID       string `toml:"id"`
	Page     string `toml:"page"`
	Name     string `toml:"name"`
	Provider string `toml:"provider"`
	Owner    string `toml:"owner"`
	Repo     string `toml:"repo"`
	BaseURL  string `toml:"base_url"`
	Token    string `toml:"token"`
	Private  bool   `toml:"private"`
	Enabled  *bool  `toml:"enabled"`
	Limit    int    `toml:"limit"`
}

func cmdImport() *cli.Command {
	var storeCfg config.Store

	return &cli.Command{
		Name:      "import",
		Usage:     "Load page/source definitions from a TOML file",
		ArgsUsage: "<file.toml>",
		Flags:     storeCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one TOML file is required")
			}
			path := c.Args().First()

			data, err := os.ReadFile(path)
			if err != nil {
				return goerr.Wrap(err, "failed to read import file", goerr.V("path", path))
			}

			var file importFile
			if err := toml.Unmarshal(data, &file); err != nil {
				return goerr.Wrap(err, "failed to parse import file", goerr.V("path", path))
			}

			db, err := store.Open(storeCfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			logger := ctxlog.From(ctx)
			for _, s := range file.Sources {
				src := model.SourceConfig{
					ID:            s.ID,
					PageID:        s.Page,
					DisplayName:   s.Name,
					Provider:      types.Provider(s.Provider),
					Owner:         s.Owner,
					Repo:          s.Repo,
					BaseURL:       s.BaseURL,
					IsPrivate:     s.Private,
					AccessToken:   s.Token,
					Enabled:       s.Enabled == nil || *s.Enabled,
					ReleasesLimit: s.Limit,
				}
				if src.ID == "" {
					src.ID = uuid.NewString()
				}
				if src.ReleasesLimit == 0 {
					src.ReleasesLimit = 10
				}
				if src.PageID == "" || src.Owner == "" || src.Repo == "" {
					return goerr.New("source requires page, owner and repo",
						goerr.V("source", src.Repository()),
					)
				}
				if src.DisplayName == "" {
					src.DisplayName = src.Repository()
				}

				if err := db.UpsertSource(ctx, src); err != nil {
					return err
				}
				logger.Info("imported source",
					slog.String("id", src.ID),
					slog.String("page", src.PageID),
					slog.String("repository", src.Repository()),
					slog.String("provider", string(src.Provider)),
				)
			}

			logger.Info("import complete", slog.Int("sources", len(file.Sources)))
			return nil
		},
	}
}
