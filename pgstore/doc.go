// Package pgstore implements store.AccountStore on PostgreSQL using a pgx
// connection pool. Schema migrations are embedded and applied with goose.
//
// Token and confirmation takes are single DELETE ... RETURNING statements,
// so concurrent consumers of one token see exactly one winner. Account
// updates are guarded by the version column.
package pgstore
