package errorx

var (
	ErrCapacityExceeded    = Error{KindPolicy, "capacity_exceeded", "event is at capacity"}
	ErrAlreadyRegistered   = Error{KindPolicy, "already_registered", "user is already registered"}
	ErrRegistrationClosed  = Error{KindPolicy, "registration_closed", "registration is closed"}
	ErrNotRegistered       = Error{KindPolicy, "not_registered", "user is not registered"}
	ErrFeedbackNotEligible = Error{KindPolicy, "feedback_not_eligible", "feedback not allowed"}
	ErrInvalidTransition   = Error{KindPolicy, "invalid_transition", "invalid status transition"}
	ErrEmailTaken          = Error{KindPolicy, "email_taken", "email already in use"}

	ErrPermissionDenied = Error{KindPermission, "permission_denied", "permission denied"}

	ErrEventNotFound        = Error{KindNotFound, "event_not_found", "event not found"}
	ErrUserNotFound         = Error{KindNotFound, "user_not_found", "user not found"}
	ErrNotificationNotFound = Error{KindNotFound, "notification_not_found", "notification not found"}

	ErrTransport       = Error{KindTransport, "transport_failure", "push transport failed"}
	ErrTickBusy        = Error{KindScheduler, "tick_busy", "another tick is running"}
	ErrTickLock        = Error{KindScheduler, "tick_lock", "tick lock unavailable"}
	ErrDispatchClaimed = Error{KindScheduler, "dispatch_claimed", "notification is already being dispatched"}
)
