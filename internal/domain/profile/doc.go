// Package profile holds the user snapshot the matcher scores against.
//
// Profiles are owned by another service. The matcher only reads them, once
// per operation, and treats the result as immutable:
//
//	p, err := repo.GetByID(ctx, userID)
//	if shared.IsNotFound(err) {
//	    // reject the request
//	}
//
// Availability is a WeeklySchedule of "HH:MM" slots per weekday. Slots are
// half-open, so 09:00-12:00 and 12:00-15:00 do not overlap.
package profile
