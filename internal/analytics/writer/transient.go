package writer

import (
	"errors"
	"net/http"
	"slices"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	transientHTTP = []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
	transientGRPC = []codes.Code{
		codes.Aborted,
		codes.DeadlineExceeded,
		codes.Internal,
		codes.ResourceExhausted,
		codes.Unavailable,
	}
)

// isTransient reports whether retrying the insert may succeed. Aggregated
// errors are transient only when every part is.
func isTransient(err error) bool {
	var (
		multi  *cbigquery.MultiError
		put    *cbigquery.PutMultiError
		row    *cbigquery.RowInsertionError
		apiErr *googleapi.Error
		grpc   interface{ GRPCStatus() *status.Status }
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &multi):
		return multi != nil && allTransient(*multi)
	case errors.As(err, &put):
		if put == nil || len(*put) == 0 {
			return false
		}
		for _, rowErr := range *put {
			if !isTransient(rowErr.Errors) {
				return false
			}
		}
		return true
	case errors.As(err, &row):
		return row != nil && allTransient(row.Errors)
	case errors.As(err, &apiErr):
		return slices.Contains(transientHTTP, apiErr.Code)
	case errors.As(err, &grpc):
		st := grpc.GRPCStatus()
		return st != nil && slices.Contains(transientGRPC, st.Code())
	}
	return false
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, err := range errs {
		if !isTransient(err) {
			return false
		}
	}
	return true
}
