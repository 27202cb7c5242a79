package repository

import "github.com/zentity-id/go-zentity-server/types"

// CouchDB database names
const (
	User              = "users"
	PasskeyCredential = "passkey_credentials"
	Secret            = "secrets"
	WrappedDek        = "wrapped_deks"
	RecoveryChallenge = "recovery_challenges"
	GuardianApproval  = "guardian_approvals"
)

type CouchDBSelector struct {
	dbs []Repository
}

func NewCouchDBSelector() *CouchDBSelector {
	return &CouchDBSelector{}
}

// adds a database to the database selector
func (c *CouchDBSelector) AddDB(db Repository) {
	c.dbs = append(c.dbs, db)
}

// returns the required database
func (c *CouchDBSelector) ChooseDB(dbName string) (Repository, error) {
	if len(c.dbs) == 0 {
		return nil, types.ErrNotFound
	}
	for i, r := range c.dbs {
		if r.GetDBName() == dbName {
			return c.dbs[i], nil
		}
	}
	return nil, types.ErrNotFound
}
