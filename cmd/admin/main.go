// Command admin runs maintenance tasks against the complaint database.
//
//	admin migrate
//	admin backfill-gps
//	admin export <csv|xlsx> <file>
//	admin create-admin <username> <email> <password>
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"pathpatrol/config"
	"pathpatrol/internal/app"
	"pathpatrol/internal/export"
	"pathpatrol/internal/model"
)

const usage = `usage:
  admin migrate
  admin backfill-gps
  admin export <csv|xlsx> <file>
  admin create-admin <username> <email> <password>`

// operator is the actor used for maintenance runs.
var operator = &model.User{Username: "admin-cli", Role: model.RoleAdmin, IsActive: true}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	if err := run(ctx, a, os.Args[1], os.Args[2:]); err != nil {
		a.Close()
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/config.json"
}

func run(ctx context.Context, a *app.App, cmd string, args []string) error {
	switch cmd {
	case "migrate":
		// app.New has already applied pending migrations.
		versions, err := a.Migrations(ctx)
		if err != nil {
			return err
		}
		log.Printf("Schema at version %d (%d migrations applied)", last(versions), len(versions))
		return nil

	case "backfill-gps":
		n, err := a.ComplaintService.BackfillCoordinates(ctx, operator)
		if err != nil {
			return err
		}
		log.Printf("Backfilled coordinates for %d complaints", n)
		return nil

	case "export":
		if len(args) != 2 {
			return fmt.Errorf("expected <csv|xlsx> <file>\n%s", usage)
		}
		return exportTo(ctx, a, args[0], args[1])

	case "create-admin":
		if len(args) != 3 {
			return fmt.Errorf("expected <username> <email> <password>\n%s", usage)
		}
		user, err := a.AuthService.CreateAdmin(ctx, args[0], args[1], args[2], "")
		if err != nil {
			return err
		}
		log.Printf("Created admin %q (id %d)", user.Username, user.ID)
		return nil
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func exportTo(ctx context.Context, a *app.App, format, path string) error {
	f, err := export.ParseFormat(format)
	if err != nil {
		return err
	}
	table, err := a.ComplaintService.ExportTable(ctx, operator)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(out, f, table); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	log.Printf("Exported %d complaints to %s", len(table.Rows), path)
	return nil
}

func last(versions []int) int {
	if len(versions) == 0 {
		return 0
	}
	return versions[len(versions)-1]
}
