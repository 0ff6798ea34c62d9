package github

import (
	"encoding/base64"
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ReleaseAssetIDFromNodeID extracts the REST id of a release asset from its
// GraphQL node id. The encoding is undocumented; two formats are known:
//
//	RA_<base64>             the id is the last 4 bytes, big-endian
//	base64("012:ReleaseAsset<id>")
func ReleaseAssetIDFromNodeID(nodeID string) (int64, error) {
	if encoded, ok := strings.CutPrefix(nodeID, "RA_"); ok {
		raw, err := decodeNodeID(encoded)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to decode node id", goerr.V("node_id", nodeID))
		}
		if len(raw) < 4 {
			return 0, goerr.New("unrecognized node id format", goerr.V("node_id", nodeID))
		}
		return int64(binary.BigEndian.Uint32(raw[len(raw)-4:])), nil
	}

	raw, err := decodeNodeID(nodeID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to decode node id", goerr.V("node_id", nodeID))
	}

	_, idPart, found := strings.Cut(string(raw), "ReleaseAsset")
	if !found {
		return 0, goerr.New("unrecognized node id format",
			goerr.V("node_id", nodeID),
			goerr.V("decoded", string(raw)))
	}

	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, goerr.Wrap(err, "unrecognized node id format",
			goerr.V("node_id", nodeID),
			goerr.V("decoded", string(raw)))
	}
	return id, nil
}

// decodeNodeID accepts both standard and URL-safe alphabets, padded or not
func decodeNodeID(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	return base64.RawStdEncoding.DecodeString(s)
}
