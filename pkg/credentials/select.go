package credentials

import (
	"encoding/json"
	"log/slog"

	"github.com/go-ctap/walletbridge/pkg/webauthntypes"
)

// Backends is the set Select picks from. A nil Software means the emulator
// is disabled.
type Backends struct {
	SecurityKey Backend
	Platform    Backend
	Software    Backend
}

type hintsEnvelope struct {
	PublicKey struct {
		Hints []json.RawMessage `json:"hints"`
	} `json:"publicKey"`
}

// Hints returns the string values of publicKey.hints, in order. Non-string
// entries are skipped. ok is false when the options or the field are malformed.
func Hints(optionsJSON string) (hints []webauthntypes.PublicKeyCredentialHint, ok bool) {
	var env hintsEnvelope
	if err := json.Unmarshal([]byte(optionsJSON), &env); err != nil {
		return nil, false
	}

	for _, raw := range env.PublicKey.Hints {
		var hint string
		if err := json.Unmarshal(raw, &hint); err != nil {
			continue
		}
		hints = append(hints, webauthntypes.PublicKeyCredentialHint(hint))
	}
	return hints, true
}

// Select picks the backend for a create/get call from publicKey.hints. The
// first hint that maps to an available backend wins; the security key is the
// default. The result is nil when that default is nil too.
func Select(logger *slog.Logger, optionsJSON string, backends Backends) Backend {
	if logger == nil {
		logger = slog.Default()
	}

	hints, ok := Hints(optionsJSON)
	if !ok {
		logger.Debug("options without readable hints, using security key")
		return backends.SecurityKey
	}

	for _, hint := range hints {
		var backend Backend

		switch hint {
		case webauthntypes.PublicKeyCredentialHintSecurityKey:
			backend = backends.SecurityKey
		case webauthntypes.PublicKeyCredentialHintClientDevice:
			backend = backends.Platform
		case webauthntypes.PublicKeyCredentialHintEmulator:
			backend = backends.Software
		case webauthntypes.PublicKeyCredentialHintHybrid:
			logger.Debug("hybrid transport is not supported, skipping hint")
		default:
			logger.Warn("unknown hint", "hint", hint)
		}

		if backend != nil {
			return backend
		}
	}

	return backends.SecurityKey
}
