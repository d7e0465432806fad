package conflict

import "github.com/goliatone/go-statesync/pkg/domain"

// maxMergeDepth bounds recursion so cyclic or pathologically nested state
// cannot blow the stack. Past the bound the remote subtree wins wholesale.
const maxMergeDepth = 64

// mergeDocuments walks the union of keys on both sides. Ignored keys keep the
// local value, forced keys take the remote value, nested objects recurse, and
// for everything else the remote value wins when the remote defines the key.
// Arrays are opaque leaves: the remote replaces the local wholesale.
func mergeDocuments(local, remote domain.Document, opts MergeOptions, depth int) domain.Document {
	if depth <= 0 {
		return remote.Clone()
	}

	ignore := toSet(opts.IgnoreKeys)
	force := toSet(opts.ForceLastWriteWinsKeys)

	out := make(domain.Document, len(local)+len(remote))
	for key, value := range local {
		out[key] = value
	}

	for key := range union(local, remote) {
		if ignore[key] {
			continue
		}
		remoteValue, remoteHas := remote[key]
		if force[key] {
			if remoteHas {
				out[key] = remoteValue
			} else {
				delete(out, key)
			}
			continue
		}
		localMap, localIsMap := asMap(out[key])
		remoteMap, remoteIsMap := asMap(remoteValue)
		if localIsMap && remoteIsMap {
			out[key] = map[string]any(mergeDocuments(localMap, remoteMap, opts, depth-1))
			continue
		}
		if remoteHas {
			out[key] = remoteValue
		}
	}
	return out
}

func union(local, remote domain.Document) map[string]struct{} {
	keys := make(map[string]struct{}, len(local)+len(remote))
	for key := range local {
		keys[key] = struct{}{}
	}
	for key := range remote {
		keys[key] = struct{}{}
	}
	return keys
}

func asMap(v any) (domain.Document, bool) {
	switch val := v.(type) {
	case map[string]any:
		return domain.Document(val), true
	case domain.Document:
		return val, true
	default:
		return nil, false
	}
}

func toSet(keys []string) map[string]bool {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]bool, len(keys))
	for _, key := range keys {
		set[key] = true
	}
	return set
}
