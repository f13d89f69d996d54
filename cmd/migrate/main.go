// Command migrate manages the dashgate schema: apply or roll back
// migrations and load seed data.
//
//	migrate -dsn postgres://... up
//	migrate status
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

	"dashgate.org/internal/migrate"
)

func main() {
	log.SetFlags(0)

	dsn := flag.String("dsn", os.Getenv("DASHGATE_PG_DSN"), "PostgreSQL connection string (defaults to DASHGATE_PG_DSN)")
	dir := flag.String("dir", "ops/migrations", "migrations root holding sql/ and seeds/")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		log.Fatal("usage: migrate [flags] up|down|seed|status")
	}
	if *dsn == "" {
		log.Fatal("no database configured: set -dsn or DASHGATE_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("database unreachable: %v", err)
	}

	mgr := migrate.NewManager(db, *dir+"/sql", *dir+"/seeds")
	if err := run(ctx, mgr, cmd); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func run(ctx context.Context, mgr *migrate.Manager, cmd string) error {
	switch cmd {
	case "up":
		return mgr.Up(ctx)
	case "down":
		return mgr.Down(ctx)
	case "seed":
		return mgr.Seed(ctx)
	case "status":
		applied, err := mgr.Status(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("no migrations applied")
			return nil
		}
		for _, name := range applied {
			fmt.Println(name)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
