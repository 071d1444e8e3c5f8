package repository

import "encoding/json"

// decodeInto round-trips a decoded-JSON interface{} value (as produced by
// scanning a jsonb column into a map[string]interface{}) back into a typed
// destination.
func decodeInto(raw interface{}, dst interface{}) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, dst)
}
