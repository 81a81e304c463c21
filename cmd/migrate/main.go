package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"verida.org/internal/migrate"
)

// Applies the embedded schema to the contract state database and, when it
// lives elsewhere, to the read mirror database as well.
func main() {
	log.SetFlags(0)
	_ = godotenv.Load()

	var (
		stateDSN  = flag.String("dsn", os.Getenv("VERIDA_PG_DSN"), "contract state PostgreSQL DSN")
		mirrorDSN = flag.String("mirror-dsn", os.Getenv("VERIDA_MIRROR_DSN"), "read mirror PostgreSQL DSN (optional)")
		table     = flag.String("table", "", "bookkeeping table (default schema_migrations)")
		timeout   = flag.Duration("timeout", 30*time.Second, "overall deadline")
	)
	flag.Parse()

	targets := distinct(*stateDSN, *mirrorDSN)
	if len(targets) == 0 {
		log.Fatal("missing DSN: provide -dsn/-mirror-dsn or VERIDA_PG_DSN/VERIDA_MIRROR_DSN")
	}
	cmd := flag.Arg(0)
	if cmd != "up" && cmd != "down" && cmd != "status" {
		log.Fatal("usage: migrate [flags] up|down|status")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	for i, dsn := range targets {
		if err := apply(ctx, dsn, *table, cmd); err != nil {
			log.Fatalf("migrate %s (target %d): %v", cmd, i+1, err)
		}
	}
}

func apply(ctx context.Context, dsn, table, cmd string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrate.Migrations(), migrate.WithMigrationsTable(table))
	switch cmd {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	default:
		history, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		for _, item := range history {
			fmt.Println(item)
		}
		return nil
	}
}

func distinct(dsns ...string) []string {
	seen := make(map[string]bool, len(dsns))
	var out []string
	for _, d := range dsns {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
