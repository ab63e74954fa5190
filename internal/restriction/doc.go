// Package restriction holds the device's screen-time restrictions and the
// flat key-value store they are persisted in.
//
// Restrictions are four keys:
//
//	restrictions.blocked_apps        JSON array of bundle IDs
//	restrictions.blocked_categories  JSON array of category names
//	restrictions.goal_minutes        JSON object category -> daily minutes
//	restrictions.downtime            JSON bool
//
// An empty value is stored as an absent key, so clearing a restriction
// deletes its key. The override package also keeps its active record and
// pre-override snapshot in the same Store.
package restriction
