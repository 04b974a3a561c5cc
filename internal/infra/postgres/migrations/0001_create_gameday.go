package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_gameday.sql
var createGamedaySQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(createGamedaySQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`
				DROP TABLE IF EXISTS adjustments;
				DROP TABLE IF EXISTS purchases;
				DROP TABLE IF EXISTS products;
				DROP TABLE IF EXISTS answers;
				DROP TABLE IF EXISTS questions;
				DROP TABLE IF EXISTS campaign_players;
				DROP TABLE IF EXISTS campaigns;
				DROP TABLE IF EXISTS players;
				DROP TABLE IF EXISTS teams;
			`)
			return err
		},
	)
}
