package validation

import "github.com/opsforge/remediator/internal/domain"

// paramRule demands that at least one of its keys is present with a
// non-empty value.
type paramRule struct {
	AnyOf []string
}

func (r paramRule) satisfiedBy(params map[string]any) bool {
	for _, key := range r.AnyOf {
		v, ok := params[key]
		if !ok {
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			continue
		}
		if v == nil {
			continue
		}
		return true
	}
	return false
}

// Shared parameter requirements.
var (
	deviceKey   = paramRule{AnyOf: []string{"deviceId", "machineId"}}
	fileKey     = paramRule{AnyOf: []string{"fileHash", "sha256", "sha1"}}
	userKey     = paramRule{AnyOf: []string{"userId", "userPrincipalName", "username"}}
	emailKey    = paramRule{AnyOf: []string{"messageId", "networkMessageId"}}
	senderKey   = paramRule{AnyOf: []string{"senderAddress", "senderDomain"}}
	groupKey    = paramRule{AnyOf: []string{"groupId"}}
	instanceKey = paramRule{AnyOf: []string{"instanceId"}}
	ipKey       = paramRule{AnyOf: []string{"ipAddress", "cidr"}}
	keyIDKey    = paramRule{AnyOf: []string{"accessKeyId"}}
	bucketKey   = paramRule{AnyOf: []string{"bucketName", "resourceId"}}
)

// requiredParams declares, per action, the parameter keys a request
// must carry. Each rule is an any-of set; all rules must be satisfied.
var requiredParams = map[domain.Action][]paramRule{
	// Endpoint protection
	domain.ActionIsolateDevice:           {deviceKey},
	domain.ActionUnisolateDevice:         {deviceKey},
	domain.ActionRestrictAppExecution:    {deviceKey},
	domain.ActionUnrestrictAppExecution:  {deviceKey},
	domain.ActionRunAntivirusScan:        {deviceKey},
	domain.ActionCollectInvestigationPkg: {deviceKey},
	domain.ActionOffboardDevice:          {deviceKey},
	domain.ActionStopAndQuarantineFile:   {deviceKey, fileKey},
	domain.ActionBlockFile:               {fileKey},
	domain.ActionUnblockFile:             {fileKey},
	domain.ActionAddFileIndicator:        {fileKey},
	domain.ActionRemoveFileIndicator:     {fileKey},

	// Email security
	domain.ActionQuarantineEmail:   {emailKey},
	domain.ActionReleaseEmail:      {emailKey},
	domain.ActionRemoveEmail:       {emailKey},
	domain.ActionTraceEmail:        {emailKey},
	domain.ActionSubmitForAnalysis: {emailKey},
	domain.ActionBlockSender:       {senderKey},
	domain.ActionUnblockSender:     {senderKey},
	domain.ActionBlockSenderDomain: {senderKey},

	// Cloud app security
	domain.ActionSuspendAppUser:      {userKey},
	domain.ActionUnsuspendAppUser:    {userKey},
	domain.ActionRevokeAppAccess:     {userKey},
	domain.ActionRequireSignInAgain:  {userKey},
	domain.ActionMarkUserCompromised: {userKey},
	domain.ActionDismissAppAlert:     {paramRule{AnyOf: []string{"alertId"}}},

	// Identity protection
	domain.ActionConfirmUserCompromised: {userKey},
	domain.ActionDismissUserRisk:        {userKey},
	domain.ActionResetUserPassword:      {userKey},
	domain.ActionBlockUserSignIn:        {userKey},
	domain.ActionUnblockUserSignIn:      {userKey},
	domain.ActionRevokeUserSessions:     {userKey},

	// Directory
	domain.ActionDisableUser:         {userKey},
	domain.ActionEnableUser:          {userKey},
	domain.ActionForcePasswordReset:  {userKey},
	domain.ActionDisableAccount:      {userKey},
	domain.ActionRemoveUserFromGroup: {userKey, groupKey},
	domain.ActionAddUserToGroup:      {userKey, groupKey},
	domain.ActionDisableADDevice:     {deviceKey},
	domain.ActionDeleteADDevice:      {deviceKey},

	// Device management
	domain.ActionWipeDevice:       {deviceKey},
	domain.ActionRetireDevice:     {deviceKey},
	domain.ActionRemoteLockDevice: {deviceKey},
	domain.ActionResetPasscode:    {deviceKey},
	domain.ActionSyncDevice:       {deviceKey},
	domain.ActionRebootDevice:     {deviceKey},
	domain.ActionFullScanDevice:   {deviceKey},
	domain.ActionQuickScanDevice:  {deviceKey},

	// Cloud infrastructure
	domain.ActionDisableAccessKey:    {keyIDKey},
	domain.ActionRevokeIAMSessions:   {userKey},
	domain.ActionStopInstance:        {instanceKey},
	domain.ActionTerminateInstance:   {instanceKey},
	domain.ActionIsolateInstance:     {instanceKey},
	domain.ActionSnapshotInstance:    {instanceKey},
	domain.ActionBlockIPAddress:      {ipKey},
	domain.ActionDisablePublicAccess: {bucketKey},
}
