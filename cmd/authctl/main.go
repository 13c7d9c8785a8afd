// Command authctl runs operator tasks against the identity store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/99minutos/auth-service/internal/infrastructure/db/mongo"
	"github.com/99minutos/auth-service/internal/infrastructure/db/sqldb"
	"github.com/99minutos/auth-service/internal/pkg/config"
)

const usageText = `authctl commands:

  roles list
  roles delete -name <ROLE>     deletes the role and every user holding it
  users list
  audit list -login <LOGIN> [-limit 20]   requires MONGO_URI

The store is selected with DB_DRIVER and DB_DSN, as for the server.
`

var errUsage = errors.New("usage")

// settings is the subset of the server configuration authctl needs.
type settings struct {
	Database config.DatabaseConfig
	Mongo    config.MongoConfig
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := run(ctx, os.Args[1:], envconfig.OsLookuper(), os.Stdout, os.Stderr)
	if errors.Is(err, errUsage) {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "authctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, lookuper envconfig.Lookuper, stdout, stderr io.Writer) error {
	if len(args) < 2 {
		return errUsage
	}

	var s settings
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &s, Lookuper: lookuper}); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	switch args[0] + " " + args[1] {
	case "roles list":
		return withStore(ctx, s.Database, func(db *sqldb.DB) error {
			return listRoles(ctx, db, stdout)
		})

	case "roles delete":
		fs := flag.NewFlagSet("roles delete", flag.ContinueOnError)
		fs.SetOutput(stderr)
		name := fs.String("name", "", "role name")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *name == "" {
			return errors.New("roles delete: -name is required")
		}
		return withStore(ctx, s.Database, func(db *sqldb.DB) error {
			if err := sqldb.NewAdminRepository(db).DeleteRole(ctx, *name); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "deleted role %q\n", *name)
			return nil
		})

	case "users list":
		return withStore(ctx, s.Database, func(db *sqldb.DB) error {
			return listUsers(ctx, db, stdout)
		})

	case "audit list":
		fs := flag.NewFlagSet("audit list", flag.ContinueOnError)
		fs.SetOutput(stderr)
		login := fs.String("login", "", "account login")
		limit := fs.Int64("limit", 20, "maximum number of events")
		if err := fs.Parse(args[2:]); err != nil {
			return err
		}
		if *login == "" {
			return errors.New("audit list: -login is required")
		}
		if s.Mongo.URI == "" {
			return errors.New("audit list: MONGO_URI is not set")
		}
		return listAudit(ctx, s.Mongo, *login, *limit, stdout)
	}

	return errUsage
}

func withStore(ctx context.Context, cfg config.DatabaseConfig, fn func(*sqldb.DB) error) error {
	db, err := sqldb.Open(ctx, sqldb.Config{
		Driver:       cfg.Driver,
		DSN:          cfg.DSN,
		QueryTimeout: cfg.QueryTimeout,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

func listRoles(ctx context.Context, db *sqldb.DB, out io.Writer) error {
	roles, err := sqldb.NewIdentityRepository(db).ListRoles(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tATTRIBUTES")
	for _, r := range roles {
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.ID, r.Name, r.Attributes)
	}
	return w.Flush()
}

func listUsers(ctx context.Context, db *sqldb.DB, out io.Writer) error {
	users, err := sqldb.NewAdminRepository(db).ListUsersWithRoles(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tLOGIN\tROLE")
	for _, u := range users {
		role := "-"
		if u.Role != nil {
			role = u.Role.Name
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", u.User.ID, u.User.Username, u.User.Login, role)
	}
	return w.Flush()
}

func listAudit(ctx context.Context, cfg config.MongoConfig, login string, limit int64, out io.Writer) error {
	client, db, err := mongo.Connect(ctx, mongo.Config{URI: cfg.URI, Database: cfg.Database, AppName: "authctl"})
	if err != nil {
		return err
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	events, err := mongo.NewAuditRepository(db).RecentByLogin(ctx, login, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tOUTCOME\tUSER")
	for _, e := range events {
		user := "-"
		if e.UserID != 0 {
			user = fmt.Sprint(e.UserID)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.OccurredAt.UTC().Format(time.RFC3339), e.Kind, e.Outcome, user)
	}
	return w.Flush()
}
