package a2a

/*
PushNotificationConfig registers a webhook that receives task snapshots
when the task reaches a terminal or interrupted state.  An owner may hold
multiple configs per task, distinguished by id.
*/
type PushNotificationConfig struct {
	ID string `json:"id,omitempty"`
	// URL is the endpoint where the agent should send notifications.
	URL string `json:"url"`
	// Token is echoed back via X-A2A-Notification-Token so receivers can
	// verify the sender.
	Token string `json:"token,omitempty"`
	// Authentication holds optional credentials the agent needs to call URL.
	Authentication *PushNotificationAuthenticationInfo `json:"authentication,omitempty"`
}

// PushNotificationAuthenticationInfo mirrors the card's authentication
// declaration for webhook endpoints.
type PushNotificationAuthenticationInfo struct {
	Schemes     []string `json:"schemes"`
	Credentials string   `json:"credentials,omitempty"`
}
