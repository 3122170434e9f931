package domain

// Remediation action catalog. Actions are scoped per platform; the
// routing table in internal/routing binds them to operations.

// Endpoint protection actions.
const (
	ActionIsolateDevice              Action = "isolate-device"
	ActionUnisolateDevice            Action = "unisolate-device"
	ActionRestrictAppExecution       Action = "restrict-app-execution"
	ActionUnrestrictAppExecution     Action = "unrestrict-app-execution"
	ActionRunAntivirusScan           Action = "run-antivirus-scan"
	ActionCollectInvestigationPkg    Action = "collect-investigation-package"
	ActionStopAndQuarantineFile      Action = "stop-and-quarantine-file"
	ActionBlockFile                  Action = "block-file"
	ActionUnblockFile                Action = "unblock-file"
	ActionOffboardDevice             Action = "offboard-device"
	ActionAddFileIndicator           Action = "add-file-indicator"
	ActionRemoveFileIndicator        Action = "remove-file-indicator"
)

// Email security actions.
const (
	ActionQuarantineEmail   Action = "quarantine-email"
	ActionReleaseEmail      Action = "release-email"
	ActionRemoveEmail       Action = "remove-email"
	ActionBlockSender       Action = "block-sender"
	ActionUnblockSender     Action = "unblock-sender"
	ActionBlockSenderDomain Action = "block-sender-domain"
	ActionTraceEmail        Action = "trace-email"
	ActionSubmitForAnalysis Action = "submit-email-for-analysis"
)

// Cloud app security actions.
const (
	ActionSuspendAppUser      Action = "suspend-app-user"
	ActionUnsuspendAppUser    Action = "unsuspend-app-user"
	ActionRevokeAppAccess     Action = "revoke-app-access"
	ActionRequireSignInAgain  Action = "require-sign-in-again"
	ActionMarkUserCompromised Action = "mark-user-compromised"
	ActionDismissAppAlert     Action = "dismiss-app-alert"
)

// Identity protection actions.
const (
	ActionConfirmUserCompromised Action = "confirm-user-compromised"
	ActionDismissUserRisk        Action = "dismiss-user-risk"
	ActionResetUserPassword      Action = "reset-user-password"
	ActionBlockUserSignIn        Action = "block-user-sign-in"
	ActionUnblockUserSignIn      Action = "unblock-user-sign-in"
	ActionRevokeUserSessions     Action = "revoke-user-sessions"
)

// Directory actions.
const (
	ActionDisableUser         Action = "disable-user"
	ActionEnableUser          Action = "enable-user"
	ActionForcePasswordReset  Action = "force-password-reset"
	ActionRemoveUserFromGroup Action = "remove-user-from-group"
	ActionAddUserToGroup      Action = "add-user-to-group"
	ActionDisableAccount      Action = "disable-account"
	ActionDisableADDevice     Action = "disable-directory-device"
	ActionDeleteADDevice      Action = "delete-directory-device"
)

// Device management actions.
const (
	ActionWipeDevice       Action = "wipe-device"
	ActionRetireDevice     Action = "retire-device"
	ActionRemoteLockDevice Action = "remote-lock-device"
	ActionResetPasscode    Action = "reset-passcode"
	ActionSyncDevice       Action = "sync-device"
	ActionRebootDevice     Action = "reboot-device"
	ActionFullScanDevice   Action = "full-scan-device"
	ActionQuickScanDevice  Action = "quick-scan-device"
)

// Cloud infrastructure actions.
const (
	ActionDisableAccessKey    Action = "disable-access-key"
	ActionRevokeIAMSessions   Action = "revoke-iam-sessions"
	ActionStopInstance        Action = "stop-instance"
	ActionTerminateInstance   Action = "terminate-instance"
	ActionIsolateInstance     Action = "isolate-instance"
	ActionSnapshotInstance    Action = "snapshot-instance"
	ActionBlockIPAddress      Action = "block-ip-address"
	ActionDisablePublicAccess Action = "disable-public-access"
)
