// Package housekeeping runs scheduled maintenance for the agent.
//
// Its one job today is pruning override history older than the configured
// retention on a cron schedule.
package housekeeping
