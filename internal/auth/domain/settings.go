package domain

// Known setting keys.
const (
	SettingMFARequired       = "mfa.required"
	SettingMFAEnforcedAdmins = "mfa.enforced_for_admins"
	SettingSessionMaxAge     = "session.max_age_seconds"
)
