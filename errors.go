package mtproto

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrResponseCode is the normalized form of an rpc_error the query
// engine hands to handleError; AdditionalInfo carries the parsed
// suffix of a *_MIGRATE_N / FLOOD_WAIT_N style message, when present.
type ErrResponseCode struct {
	Code           int
	Message        string
	AdditionalInfo interface{}
}

func (e *ErrResponseCode) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ErrNotConnected is the local 600 failure used when a query executes
// while the core considers itself offline (spec §4.4).
var ErrNotConnected = &ErrResponseCode{Code: 600, Message: "NOT_CONNECTED"}

// ErrLoggingOut is surfaced to any query other than the logout itself issued
// against a DC mid-logout (spec §4.4 execute()'s precondition).
var ErrLoggingOut = &ErrResponseCode{Code: 600, Message: "LOGGING_OUT"}

// migrationDC extracts N out of a USER_MIGRATE_N / PHONE_MIGRATE_N /
// NETWORK_MIGRATE_N error string, grounded on queries.cpp's
// get_dc_from_migration.
func migrationDC(errorString string) (int, bool) {
	for _, prefix := range []string{"USER_MIGRATE_", "PHONE_MIGRATE_", "NETWORK_MIGRATE_"} {
		if strings.HasPrefix(errorString, prefix) {
			n, err := strconv.Atoi(strings.TrimPrefix(errorString, prefix))
			if err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

// floodWaitSeconds extracts S out of FLOOD_WAIT_S.
func floodWaitSeconds(errorString string) (int, bool) {
	const prefix = "FLOOD_WAIT_"
	if !strings.HasPrefix(errorString, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(errorString, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
