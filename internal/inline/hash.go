package inline

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// HashID computes the irreversible chat/user identifier hash specified in
// spec §6: hex(sha256(salt || ":" || id)). The salt is a process-wide
// secret and is never itself logged.
func HashID(salt string, id int64) string {
	sum := sha256.Sum256([]byte(salt + ":" + strconv.FormatInt(id, 10)))
	return hex.EncodeToString(sum[:])
}
