// Package conversation holds the admin gate and the per-initiator state that
// decides whether the next message is broadcast text.
package conversation

import "errors"

// ErrUnauthorized is returned when someone other than the admin tries to
// start a broadcast.
var ErrUnauthorized = errors.New("access denied")

// Gate authorizes broadcast initiators against a single admin id.
type Gate struct {
	adminID int64
}

// NewGate returns a Gate for adminID. A non-positive id authorizes nobody.
func NewGate(adminID int64) Gate { return Gate{adminID: adminID} }

func (g Gate) AdminID() int64 { return g.adminID }

func (g Gate) IsAuthorized(id int64) bool {
	return g.adminID > 0 && id == g.adminID
}

// Check is IsAuthorized as an error.
func (g Gate) Check(id int64) error {
	if !g.IsAuthorized(id) {
		return ErrUnauthorized
	}
	return nil
}
