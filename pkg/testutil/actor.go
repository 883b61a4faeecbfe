package testutil

import (
	"net/http"

	"kyb/internal/platform/middleware"
)

// WithActor sets the identity headers the actor middleware reads. Empty
// values are left unset.
func WithActor(req *http.Request, userID, userName, role string) *http.Request {
	for header, value := range map[string]string{
		middleware.HeaderActorID:   userID,
		middleware.HeaderActorName: userName,
		middleware.HeaderActorRole: role,
	} {
		if value != "" {
			req.Header.Set(header, value)
		}
	}
	return req
}
