package routing

import "github.com/opsforge/remediator/internal/domain"

// Catalog is the declarative action catalog: which actions each
// platform supports. Workers are built from this table; a combination
// absent here is a lookup miss at dispatch time, not a code path.
var Catalog = map[domain.Platform][]domain.Action{
	domain.PlatformEndpointProtection: {
		domain.ActionIsolateDevice,
		domain.ActionUnisolateDevice,
		domain.ActionRestrictAppExecution,
		domain.ActionUnrestrictAppExecution,
		domain.ActionRunAntivirusScan,
		domain.ActionCollectInvestigationPkg,
		domain.ActionStopAndQuarantineFile,
		domain.ActionBlockFile,
		domain.ActionUnblockFile,
		domain.ActionOffboardDevice,
		domain.ActionAddFileIndicator,
		domain.ActionRemoveFileIndicator,
	},
	domain.PlatformEmailSecurity: {
		domain.ActionQuarantineEmail,
		domain.ActionReleaseEmail,
		domain.ActionRemoveEmail,
		domain.ActionBlockSender,
		domain.ActionUnblockSender,
		domain.ActionBlockSenderDomain,
		domain.ActionTraceEmail,
		domain.ActionSubmitForAnalysis,
	},
	domain.PlatformCloudAppSecurity: {
		domain.ActionSuspendAppUser,
		domain.ActionUnsuspendAppUser,
		domain.ActionRevokeAppAccess,
		domain.ActionRequireSignInAgain,
		domain.ActionMarkUserCompromised,
		domain.ActionDismissAppAlert,
	},
	domain.PlatformIdentityProtection: {
		domain.ActionConfirmUserCompromised,
		domain.ActionDismissUserRisk,
		domain.ActionResetUserPassword,
		domain.ActionBlockUserSignIn,
		domain.ActionUnblockUserSignIn,
		domain.ActionRevokeUserSessions,
	},
	domain.PlatformDirectory: {
		domain.ActionDisableUser,
		domain.ActionEnableUser,
		domain.ActionForcePasswordReset,
		domain.ActionRemoveUserFromGroup,
		domain.ActionAddUserToGroup,
		domain.ActionDisableAccount,
		domain.ActionDisableADDevice,
		domain.ActionDeleteADDevice,
	},
	domain.PlatformDeviceManagement: {
		domain.ActionWipeDevice,
		domain.ActionRetireDevice,
		domain.ActionRemoteLockDevice,
		domain.ActionResetPasscode,
		domain.ActionSyncDevice,
		domain.ActionRebootDevice,
		domain.ActionFullScanDevice,
		domain.ActionQuickScanDevice,
	},
	domain.PlatformCloudInfrastructure: {
		domain.ActionDisableAccessKey,
		domain.ActionRevokeIAMSessions,
		domain.ActionStopInstance,
		domain.ActionTerminateInstance,
		domain.ActionIsolateInstance,
		domain.ActionSnapshotInstance,
		domain.ActionBlockIPAddress,
		domain.ActionDisablePublicAccess,
	},
}
