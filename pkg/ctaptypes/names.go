package ctaptypes

import "fmt"

var commandNames = map[Command]string{
	AuthenticatorMakeCredential:                "AuthenticatorMakeCredential",
	AuthenticatorGetAssertion:                  "AuthenticatorGetAssertion",
	AuthenticatorGetNextAssertion:              "AuthenticatorGetNextAssertion",
	AuthenticatorGetInfo:                       "AuthenticatorGetInfo",
	AuthenticatorClientPIN:                     "AuthenticatorClientPIN",
	AuthenticatorReset:                         "AuthenticatorReset",
	AuthenticatorBioEnrollment:                 "AuthenticatorBioEnrollment",
	AuthenticatorCredentialManagement:          "AuthenticatorCredentialManagement",
	AuthenticatorSelection:                     "AuthenticatorSelection",
	AuthenticatorLargeBlobs:                    "AuthenticatorLargeBlobs",
	AuthenticatorConfig:                        "AuthenticatorConfig",
	PrototypeAuthenticatorBioEnrollment:        "PrototypeAuthenticatorBioEnrollment",
	PrototypeAuthenticatorCredentialManagement: "PrototypeAuthenticatorCredentialManagement",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

var clientPINSubCommandNames = map[ClientPINSubCommand]string{
	ClientPINSubCommandGetPINRetries:                            "getPINRetries",
	ClientPINSubCommandGetKeyAgreement:                          "getKeyAgreement",
	ClientPINSubCommandSetPIN:                                   "setPIN",
	ClientPINSubCommandChangePIN:                                "changePIN",
	ClientPINSubCommandGetPinToken:                              "getPinToken",
	ClientPINSubCommandGetPinUvAuthTokenUsingUvWithPermissions:  "getPinUvAuthTokenUsingUvWithPermissions",
	ClientPINSubCommandGetUVRetries:                             "getUVRetries",
	ClientPINSubCommandGetPinUvAuthTokenUsingPinWithPermissions: "getPinUvAuthTokenUsingPinWithPermissions",
}

func (c ClientPINSubCommand) String() string {
	if name, ok := clientPINSubCommandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ClientPINSubCommand(0x%02X)", byte(c))
}

func (p PinUvAuthProtocol) String() string {
	return fmt.Sprintf("PinUvAuthProtocol%d", uint(p))
}
