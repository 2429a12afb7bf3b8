package rawstore

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

// ErrSchemaDrift is returned when a CSV partition object's stored header does
// not match the header the writer was configured with. Drift is rejected, not
// silently reordered into wrong columns.
var ErrSchemaDrift = errors.New("rawstore: csv header drift")

// ErrConcurrentUpdate is returned when every retry of a conditional write lost
// its race. The event was not persisted and the caller should redeliver it.
var ErrConcurrentUpdate = errors.New("rawstore: concurrent updates exhausted retries")

func isGCSPreconditionFailure(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return false
}
