package conflict

import (
	"encoding/json"

	apperrors "github.com/teamgrid/workspace-client/internal/errors"
)

// Merge combines local and server payload snapshots field by field,
// preferring non-empty local values. Objects merge recursively; arrays
// and scalars are taken whole from whichever side is non-empty, local
// first.
func Merge(local, server json.RawMessage) (json.RawMessage, error) {
	var localVal, serverVal interface{}
	if err := json.Unmarshal(local, &localVal); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConflictUnmerged, "local snapshot is not valid JSON", err)
	}
	if err := json.Unmarshal(server, &serverVal); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConflictUnmerged, "server snapshot is not valid JSON", err)
	}

	merged, err := json.Marshal(mergeValue(localVal, serverVal))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConflictUnmerged, "failed to encode merged payload", err)
	}
	return merged, nil
}

// mergeValue applies the non-empty-local-wins policy to one node of the
// value tree.
func mergeValue(local, server interface{}) interface{} {
	localObj, localIsObj := local.(map[string]interface{})
	serverObj, serverIsObj := server.(map[string]interface{})

	if localIsObj && serverIsObj {
		merged := make(map[string]interface{}, len(serverObj))
		for k, v := range serverObj {
			merged[k] = v
		}
		for k, lv := range localObj {
			if sv, ok := merged[k]; ok {
				merged[k] = mergeValue(lv, sv)
			} else {
				merged[k] = lv
			}
		}
		return merged
	}

	if isEmpty(local) {
		return server
	}
	return local
}

// isEmpty reports whether a decoded JSON value counts as empty for the
// merge policy: null, empty string, empty array, empty object. Numbers
// and booleans are never empty.
func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}
