package ctaphid

import "fmt"

var commandNames = map[Command]string{
	CTAPHID_MSG:       "CTAPHID_MSG",
	CTAPHID_CBOR:      "CTAPHID_CBOR",
	CTAPHID_INIT:      "CTAPHID_INIT",
	CTAPHID_PING:      "CTAPHID_PING",
	CTAPHID_CANCEL:    "CTAPHID_CANCEL",
	CTAPHID_ERROR:     "CTAPHID_ERROR",
	CTAPHID_KEEPALIVE: "CTAPHID_KEEPALIVE",
	CTAPHID_WINK:      "CTAPHID_WINK",
	CTAPHID_LOCK:      "CTAPHID_LOCK",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

var statusCodeNames = map[StatusCode]string{
	CTAP2_OK:                          "CTAP2_OK",
	CTAP1_ERR_INVALID_COMMAND:         "CTAP1_ERR_INVALID_COMMAND",
	CTAP1_ERR_INVALID_PARAMETER:       "CTAP1_ERR_INVALID_PARAMETER",
	CTAP1_ERR_INVALID_LENGTH:          "CTAP1_ERR_INVALID_LENGTH",
	CTAP1_ERR_INVALID_SEQ:             "CTAP1_ERR_INVALID_SEQ",
	CTAP1_ERR_TIMEOUT:                 "CTAP1_ERR_TIMEOUT",
	CTAP1_ERR_CHANNEL_BUSY:            "CTAP1_ERR_CHANNEL_BUSY",
	CTAP1_ERR_LOCK_REQUIRED:           "CTAP1_ERR_LOCK_REQUIRED",
	CTAP1_ERR_INVALID_CHANNEL:         "CTAP1_ERR_INVALID_CHANNEL",
	CTAP2_ERR_CBOR_UNEXPECTED_TYPE:    "CTAP2_ERR_CBOR_UNEXPECTED_TYPE",
	CTAP2_ERR_INVALID_CBOR:            "CTAP2_ERR_INVALID_CBOR",
	CTAP2_ERR_MISSING_PARAMETER:       "CTAP2_ERR_MISSING_PARAMETER",
	CTAP2_ERR_LIMIT_EXCEEDED:          "CTAP2_ERR_LIMIT_EXCEEDED",
	CTAP2_ERR_FP_DATABASE_FULL:        "CTAP2_ERR_FP_DATABASE_FULL",
	CTAP2_ERR_LARGE_BLOB_STORAGE_FULL: "CTAP2_ERR_LARGE_BLOB_STORAGE_FULL",
	CTAP2_ERR_CREDENTIAL_EXCLUDED:     "CTAP2_ERR_CREDENTIAL_EXCLUDED",
	CTAP2_ERR_PROCESSING:              "CTAP2_ERR_PROCESSING",
	CTAP2_ERR_INVALID_CREDENTIAL:      "CTAP2_ERR_INVALID_CREDENTIAL",
	CTAP2_ERR_USER_ACTION_PENDING:     "CTAP2_ERR_USER_ACTION_PENDING",
	CTAP2_ERR_OPERATION_PENDING:       "CTAP2_ERR_OPERATION_PENDING",
	CTAP2_ERR_NO_OPERATIONS:           "CTAP2_ERR_NO_OPERATIONS",
	CTAP2_ERR_UNSUPPORTED_ALGORITHM:   "CTAP2_ERR_UNSUPPORTED_ALGORITHM",
	CTAP2_ERR_OPERATION_DENIED:        "CTAP2_ERR_OPERATION_DENIED",
	CTAP2_ERR_KEY_STORE_FULL:          "CTAP2_ERR_KEY_STORE_FULL",
	CTAP2_ERR_UNSUPPORTED_OPTION:      "CTAP2_ERR_UNSUPPORTED_OPTION",
	CTAP2_ERR_INVALID_OPTION:          "CTAP2_ERR_INVALID_OPTION",
	CTAP2_ERR_KEEPALIVE_CANCEL:        "CTAP2_ERR_KEEPALIVE_CANCEL",
	CTAP2_ERR_NO_CREDENTIALS:          "CTAP2_ERR_NO_CREDENTIALS",
	CTAP2_ERR_USER_ACTION_TIMEOUT:     "CTAP2_ERR_USER_ACTION_TIMEOUT",
	CTAP2_ERR_NOT_ALLOWED:             "CTAP2_ERR_NOT_ALLOWED",
	CTAP2_ERR_PIN_INVALID:             "CTAP2_ERR_PIN_INVALID",
	CTAP2_ERR_PIN_BLOCKED:             "CTAP2_ERR_PIN_BLOCKED",
	CTAP2_ERR_PIN_AUTH_INVALID:        "CTAP2_ERR_PIN_AUTH_INVALID",
	CTAP2_ERR_PIN_AUTH_BLOCKED:        "CTAP2_ERR_PIN_AUTH_BLOCKED",
	CTAP2_ERR_PIN_NOT_SET:             "CTAP2_ERR_PIN_NOT_SET",
	CTAP2_ERR_PUAT_REQUIRED:           "CTAP2_ERR_PUAT_REQUIRED",
	CTAP2_ERR_PIN_POLICY_VIOLATION:    "CTAP2_ERR_PIN_POLICY_VIOLATION",
	RESERVED_FOR_FUTURE_USE:           "RESERVED_FOR_FUTURE_USE",
	CTAP2_ERR_REQUEST_TOO_LARGE:       "CTAP2_ERR_REQUEST_TOO_LARGE",
	CTAP2_ERR_ACTION_TIMEOUT:          "CTAP2_ERR_ACTION_TIMEOUT",
	CTAP2_ERR_UP_REQUIRED:             "CTAP2_ERR_UP_REQUIRED",
	CTAP2_ERR_UV_BLOCKED:              "CTAP2_ERR_UV_BLOCKED",
	CTAP2_ERR_INTEGRITY_FAILURE:       "CTAP2_ERR_INTEGRITY_FAILURE",
	CTAP2_ERR_INVALID_SUBCOMMAND:      "CTAP2_ERR_INVALID_SUBCOMMAND",
	CTAP2_ERR_UV_INVALID:              "CTAP2_ERR_UV_INVALID",
	CTAP2_ERR_UNAUTHORIZED_PERMISSION: "CTAP2_ERR_UNAUTHORIZED_PERMISSION",
	CTAP1_ERR_OTHER:                   "CTAP1_ERR_OTHER",
	CTAP2_ERR_SPEC_LAST:               "CTAP2_ERR_SPEC_LAST",
}

// String returns the symbolic CTAP name of the status. Codes inside the extension and
// vendor ranges are named after their range.
func (c StatusCode) String() string {
	if name, ok := statusCodeNames[c]; ok {
		return name
	}

	switch {
	case c >= CTAP2_ERR_EXTENSION_FIRST && c <= CTAP2_ERR_EXTENSION_LAST:
		return fmt.Sprintf("CTAP2_ERR_EXTENSION(0x%02X)", byte(c))
	case c >= CTAP2_ERR_VENDOR_FIRST:
		return fmt.Sprintf("CTAP2_ERR_VENDOR(0x%02X)", byte(c))
	default:
		return fmt.Sprintf("StatusCode(0x%02X)", byte(c))
	}
}

var errorNames = map[Error]string{
	ERR_INVALID_CMD:     "ERR_INVALID_CMD",
	ERR_INVALID_PAR:     "ERR_INVALID_PAR",
	ERR_INVALID_LEN:     "ERR_INVALID_LEN",
	ERR_INVALID_SEQ:     "ERR_INVALID_SEQ",
	ERR_MSG_TIMEOUT:     "ERR_MSG_TIMEOUT",
	ERR_CHANNEL_BUSY:    "ERR_CHANNEL_BUSY",
	ERR_LOCK_REQUIRED:   "ERR_LOCK_REQUIRED",
	ERR_INVALID_CHANNEL: "ERR_INVALID_CHANNEL",
	ERR_OTHER:           "ERR_OTHER",
}

func (e Error) String() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Error(0x%02X)", byte(e))
}

func (s KeepaliveStatusCode) String() string {
	switch s {
	case STATUS_PROCESSING:
		return "STATUS_PROCESSING"
	case STATUS_UPNEEDED:
		return "STATUS_UPNEEDED"
	default:
		return fmt.Sprintf("KeepaliveStatusCode(%d)", byte(s))
	}
}
