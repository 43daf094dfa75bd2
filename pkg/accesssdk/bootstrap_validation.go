package accesssdk

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const bootstrapRequiredReason = "required"

// Validate checks the bootstrap request before it is sent.
// Returns a map of field names to error messages, or nil if all fields are valid.
func (b BootstrapRequest) Validate() map[string]string {
	errs := make(map[string]string)

	b.validateFirmName(errs)
	b.validateEmail(errs)
	b.validateDisplayName(errs)
	b.validatePassword(errs)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (b BootstrapRequest) validateFirmName(errs map[string]string) {
	name := strings.TrimSpace(b.FirmName)
	switch {
	case name == "":
		errs["firm_name"] = bootstrapRequiredReason
	case utf8.RuneCountInString(name) > 200:
		errs["firm_name"] = "too long (max 200)"
	}
}

func (b BootstrapRequest) validateEmail(errs map[string]string) {
	email := strings.TrimSpace(b.AdminEmail)
	if email == "" {
		errs["admin_email"] = bootstrapRequiredReason
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs["admin_email"] = "not a valid email address"
	}
}

func (b BootstrapRequest) validateDisplayName(errs map[string]string) {
	name := strings.TrimSpace(b.AdminDisplayName)
	switch {
	case name == "":
		errs["admin_display_name"] = bootstrapRequiredReason
	case utf8.RuneCountInString(name) > 100:
		errs["admin_display_name"] = "too long (max 100)"
	}
}

func (b BootstrapRequest) validatePassword(errs map[string]string) {
	pw := b.AdminPassword
	switch {
	case pw == "":
		errs["admin_password"] = bootstrapRequiredReason
	case utf8.RuneCountInString(pw) < 8:
		errs["admin_password"] = "too short (min 8)"
	case len(pw) > 256:
		errs["admin_password"] = "too long (max 256)"
	}
}
