package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	domsearch "github.com/knowledge-network/knsearch/internal/domain/search"
)

// cacheKey derives the deterministic cache key for a normalized request and
// caller. The caller is part of the key because permission filters depend on
// it; the workspace id stays in clear text so pattern-based workspace
// invalidation can find the key.
func cacheKey(req *domsearch.Request, callerID string) string {
	payload, _ := json.Marshal(req)
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte{0})
	h.Write([]byte(callerID))
	return "search:" + req.WorkspaceID + ":" + hex.EncodeToString(h.Sum(nil))
}

// workspaceTag is the cache tag shared by every result of a workspace.
func workspaceTag(workspaceID string) string {
	return "ws:" + workspaceID
}
