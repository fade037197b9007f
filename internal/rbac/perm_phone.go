package rbac

// Phone integration permissions.
const (
	PermPhoneMakeCall       Permission = "phone:makeCall"
	PermPhoneGetCallHistory Permission = "phone:getCallHistory"
	PermPhoneSendSMS        Permission = "phone:sendSms"
	PermPhoneManageNumbers  Permission = "phone:manageNumbers"
)

// PhoneScopes lists all permissions related to the phone integration.
func PhoneScopes() []Permission {
	return []Permission{
		PermPhoneMakeCall,
		PermPhoneGetCallHistory,
		PermPhoneSendSMS,
		PermPhoneManageNumbers,
	}
}
