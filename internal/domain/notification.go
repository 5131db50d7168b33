package domain

// NotificationInfo is where and how to deliver push notifications to one user
type NotificationInfo struct {
	Token string `json:"token" validate:"required"`
	URL   string `json:"url" validate:"required,url"`
}
