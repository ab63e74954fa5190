// Package database provides the SQLite connection used for the agent's
// persistent state.
//
// Two things live in the database:
//   - kv_state: restriction keys plus the active override and its snapshot
//   - override_history: one row per override lifecycle event
//
// Schema changes ship as embedded migrations (see package migrations) and
// are applied on startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// All queries are parameterised. The database file is chmod 0600.
package database
