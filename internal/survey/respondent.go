package survey

import (
	"math/rand"
	"strconv"

	"pictopercept/internal/utils"
)

// ResolveUserID returns the inbound respondent identifier when it is usable,
// otherwise an anonymous one.
func ResolveUserID(param string, r *rand.Rand) string {
	if utils.IsValidRespondentID(param) {
		return param
	}
	return "anonymous_" + strconv.Itoa(10000+r.Intn(90000))
}
