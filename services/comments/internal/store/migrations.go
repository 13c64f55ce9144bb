package store

import "embed"

// Migrations holds the postgres schema, applied with golang-migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations.
const MigrationsDir = "migrations"
