package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/hirosegw/changeboard/pkg/domain/model"
	"github.com/hirosegw/changeboard/pkg/domain/types"
	"github.com/hirosegw/changeboard/pkg/infra/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "changeboard.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStore_SourceRoundtrip(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	src := model.SourceConfig{
		ID:            "src-1",
		PageID:        "page-1",
		DisplayName:   "Runner",
		Provider:      types.ProviderGitLab,
		Owner:         "gitlab-org",
		Repo:          "gitlab-runner",
		BaseURL:       "https://gitlab.example.com/api/v4",
		IsPrivate:     true,
		AccessToken:   "glpat-secret",
		Enabled:       true,
		ReleasesLimit: 5,
	}
	gt.NoError(t, db.UpsertSource(ctx, src))

	srcs, err := db.ListEnabledSources(ctx, "page-1")
	gt.NoError(t, err)
	gt.Number(t, len(srcs)).Equal(1)
	gt.Value(t, srcs[0]).Equal(src)

	t.Run("upsert replaces", func(t *testing.T) {
		src.DisplayName = "GitLab Runner"
		src.ReleasesLimit = 8
		gt.NoError(t, db.UpsertSource(ctx, src))

		srcs, err := db.ListEnabledSources(ctx, "page-1")
		gt.NoError(t, err)
		gt.Number(t, len(srcs)).Equal(1)
		gt.Value(t, srcs[0].DisplayName).Equal("GitLab Runner")
		gt.Number(t, srcs[0].ReleasesLimit).Equal(8)
	})

	t.Run("other pages empty", func(t *testing.T) {
		srcs, err := db.ListEnabledSources(ctx, "page-2")
		gt.NoError(t, err)
		gt.Number(t, len(srcs)).Equal(0)
	})
}

func TestStore_DisabledSourcesExcluded(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	enabled := model.SourceConfig{
		ID: "src-on", PageID: "page-1", DisplayName: "alpha",
		Provider: types.ProviderGitHub, Owner: "o", Repo: "a",
		Enabled: true, ReleasesLimit: 10,
	}
	disabled := enabled
	disabled.ID = "src-off"
	disabled.DisplayName = "beta"
	disabled.Enabled = false

	gt.NoError(t, db.UpsertSource(ctx, enabled))
	gt.NoError(t, db.UpsertSource(ctx, disabled))

	srcs, err := db.ListEnabledSources(ctx, "page-1")
	gt.NoError(t, err)
	gt.Number(t, len(srcs)).Equal(1)
	gt.Value(t, srcs[0].ID).Equal("src-on")
}

func TestStore_UpsertRejectsUnknownProvider(t *testing.T) {
	db := openTestStore(t)

	err := db.UpsertSource(context.Background(), model.SourceConfig{
		ID: "src-1", PageID: "page-1", Provider: types.Provider("sourceforge"),
		Owner: "o", Repo: "r",
	})
	gt.Error(t, err)
}

func TestStore_SnapshotRoundtrip(t *testing.T) {
	ctx := context.Background()
	db := openTestStore(t)

	t.Run("missing snapshot is nil", func(t *testing.T) {
		snap, err := db.GetSnapshot(ctx, "page-1")
		gt.NoError(t, err)
		gt.Value(t, snap).Nil()
	})

	fetchedAt := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	changelog := &model.UnifiedChangelog{
		FetchedAt: fetchedAt,
		Releases: []model.AggregatedRelease{
			{
				ID:          "src-1:v1.2.0",
				SourceID:    "src-1",
				Kind:        model.KindRelease,
				TagName:     "v1.2.0",
				Name:        "v1.2.0",
				BodyExcerpt: "Bug fixes",
				HTMLURL:     "https://github.com/o/r/releases/tag/v1.2.0",
				PublishedAt: fetchedAt.Add(-time.Hour),
			},
		},
		Errors: []model.SourceFetchError{
			{SourceID: "src-2", SourceName: "other", Repository: "o/other", Message: "Github API 500: boom"},
		},
	}
	gt.NoError(t, db.SaveSnapshot(ctx, "page-1", changelog))

	got, err := db.GetSnapshot(ctx, "page-1")
	gt.NoError(t, err)
	gt.Value(t, got).Equal(changelog)

	t.Run("save replaces", func(t *testing.T) {
		next := &model.UnifiedChangelog{
			FetchedAt: fetchedAt.Add(time.Minute),
			Releases:  []model.AggregatedRelease{},
			Errors:    []model.SourceFetchError{},
		}
		gt.NoError(t, db.SaveSnapshot(ctx, "page-1", next))

		got, err := db.GetSnapshot(ctx, "page-1")
		gt.NoError(t, err)
		gt.Value(t, got).Equal(next)
	})
}
