package protocol

import "strconv"

// Status is the outcome code carried by every response.
type Status int

const (
	StatusSuccess       Status = 200
	StatusCreated       Status = 201
	StatusBadRequest    Status = 400
	StatusUnauthorized  Status = 401
	StatusForbidden     Status = 403
	StatusNotFound      Status = 404
	StatusConflict      Status = 409
	StatusInternalError Status = 500
)

// Success reports whether the status is in the 2xx range.
func (s Status) Success() bool {
	return s >= 200 && s < 300
}

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusCreated:
		return "CREATED"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusForbidden:
		return "FORBIDDEN"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusConflict:
		return "CONFLICT"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	default:
		return "STATUS_" + strconv.Itoa(int(s))
	}
}
