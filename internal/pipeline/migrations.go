package pipeline

import "embed"

// Migrations holds the pipeline_entries schema, read from the "migrations" directory.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory within Migrations holding the SQL files.
const MigrationsDir = "migrations"
