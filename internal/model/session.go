package model

import "time"

// SessionPointer records which account is current for one client (a browser tab or
// process). Account data itself always lives in the accounts collection.
type SessionPointer struct {
	ClientID  string    `db:"client_id" json:"clientId"`
	AccountID string    `db:"account_id" json:"accountId"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
