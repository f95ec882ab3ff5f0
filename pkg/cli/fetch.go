package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/hirosegw/changeboard/pkg/cli/config"
	"github.com/hirosegw/changeboard/pkg/infra/store"
	"github.com/hirosegw/changeboard/pkg/usecase"
)

func cmdFetch() *cli.Command {
	var (
		storeCfg config.Store
		cacheCfg config.Cache
		refresh  bool
	)

	flags := append(storeCfg.Flags(), cacheCfg.Flags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "refresh",
		Usage:       "Bypass cache and snapshot, force a new aggregation",
		Destination: &refresh,
	})

	return &cli.Command{
		Name:      "fetch",
		Usage:     "Aggregate one page and print the result as JSON",
		ArgsUsage: "<page-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one page id is required")
			}
			pageID := c.Args().First()

			db, err := store.Open(storeCfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			changelogUC := usecase.NewChangelog(db, db,
				usecase.WithCacheTTL(cacheCfg.TTL),
				usecase.WithFetchTimeout(cacheCfg.FetchTimeout),
			)

			changelog, err := changelogUC.GetUnifiedChangelog(ctx, pageID, refresh)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(changelog)
		},
	}
}
