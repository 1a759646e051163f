package dto

// MarkReadRequest lists the notifications to mark as read.
type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=200,dive,uuid"`
}

// MarkReadResult reports how many rows changed state.
type MarkReadResult struct {
	Updated int64 `json:"updated"`
}

// UnreadCount is the badge counter for a recipient.
type UnreadCount struct {
	Count int `json:"count"`
}
