// Package origintrust gates a single privileged decision: whether a
// file:// IPC origin should be trusted by an embedding desktop shell. It is
// a deliberately narrow port of the environment-variable opt-in from
// original_source/apps/desktop/src-tauri/src/ipc_origin.rs — the full
// WebView origin-matching machinery it lived alongside is Tauri/desktop-app
// specific and out of scope for this module; only the env-var gate applies
// to a library used from arbitrary embedders.
package origintrust

import (
	"os"
	"strings"
)

// trustEnvVar is the opt-in switch: set to a non-empty, non-"0", non-"false"
// value (case-insensitively) to trust file:// origins for privileged
// operations. Only meaningful in debug builds — see FileIPCOriginTrusted.
const trustEnvVar = "FORMULA_TRUST_FILE_IPC_ORIGIN"

// FileIPCOriginTrusted reports whether file:// IPC origins should be
// trusted for privileged commands. debugBuild must reflect the embedder's
// own release/debug distinction (Go has no built-in equivalent of Rust's
// cfg!(debug_assertions)); this function never trusts file:// origins when
// debugBuild is false, regardless of the environment variable, so that a
// release build can't be coerced into trusting local HTML by setting an
// environment variable.
func FileIPCOriginTrusted(debugBuild bool) bool {
	if !debugBuild {
		return false
	}
	raw, ok := os.LookupEnv(trustEnvVar)
	if !ok {
		return false
	}
	v := strings.ToLower(strings.TrimSpace(raw))
	return !(v == "" || v == "0" || v == "false")
}
