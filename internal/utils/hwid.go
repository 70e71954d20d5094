package utils

import (
	"github.com/denisbrodbeck/machineid"
)

const hwidAppID = "modsync"

// HWID is an anonymised, app-scoped machine identifier sent with every request
// so server operators can tell clients apart in their access logs.
var HWID = hardwareID()

func hardwareID() string {
	id, err := machineid.ProtectedID(hwidAppID)
	if err != nil {
		return "unknown"
	}
	return id
}
