package auth

// Known OAuth scopes used by the time-tracking API.
const (
	ScopeTimetrackRead    = "timetrack:read"
	ScopeTimetrackWrite   = "timetrack:write"
	ScopeTimetrackApprove = "timetrack:approve"
	ScopeTimetrackAdmin   = "timetrack:admin"
)
