package core

import "strconv"

// Identity is the authenticated principal attached to one connection.
type Identity struct {
	UserID int64
	Role   string
}

// Name is the principal name used in CONNECTED frames and logs.
func (i Identity) Name() string {
	return strconv.FormatInt(i.UserID, 10)
}
