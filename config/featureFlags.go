package config

import (
	"os"
	"strings"
)

// FcSyncKindEnabled gates individual FC entity kinds for incremental rollout.
//
// Set via env:
// - FC_SYNC_KINDS="facility,product,cmm,issue_voucher" (empty = all kinds)
//
// Kind keys are case-insensitive.
func FcSyncKindEnabled(kind string) bool {
	kind = strings.ToLower(strings.TrimSpace(kind))
	if kind == "" {
		return false
	}
	raw := os.Getenv("FC_SYNC_KINDS")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToLower(strings.TrimSpace(part)) == kind {
			return true
		}
	}
	return false
}

// EnvBoolDefault reads a boolean env var with a fallback.
func EnvBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
