package domain

import "database/sql"

// LastControlLayout is the storage format of the last_control column.
const LastControlLayout = "2006-01-02 15:04:05"

// User represents a viewer row stored in the users table.
// Every column except Username stays NULL until it is first written.
type User struct {
	Username    string
	Points      sql.NullInt64
	Opted       sql.NullInt64
	Session     sql.NullInt64
	Watched     sql.NullInt64
	Referral    sql.NullString
	LastControl sql.NullString
}

// IsOpted reports whether the viewer consented to bot interaction.
func (u *User) IsOpted() bool {
	return u != nil && u.Opted.Valid && u.Opted.Int64 == 1
}
