package service

import "fmt"

type ErrorCode uint16

const (
	CodeUnauthorized ErrorCode = iota + 1
	CodePriceTooLow
	CodeAlreadyExisted
	CodeNoneExisted
	CodeNotOwner
	CodeOwnerAlready
	CodeOutOfBound
)

// Error is the failure type of every registry operation. Sentinels are
// compared with errors.Is; transports extract the code with errors.As.
type Error struct {
	Code    ErrorCode
	Name    string
	message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.message)
}

var (
	ErrUnauthorized = &Error{
		Code: CodeUnauthorized, Name: "Unauthorized", message: "caller is not authenticated",
	}
	ErrPriceTooLow = &Error{
		Code: CodePriceTooLow, Name: "PriceTooLow", message: "price must be greater than zero",
	}
	ErrAlreadyExisted = &Error{
		Code: CodeAlreadyExisted, Name: "AlreadyExisted", message: "kitty already exists",
	}
	ErrNoneExisted = &Error{
		Code: CodeNoneExisted, Name: "NoneExisted", message: "kitty does not exist",
	}
	ErrNotOwner = &Error{
		Code: CodeNotOwner, Name: "NotOwner", message: "caller does not own the kitty",
	}
	ErrOwnerAlready = &Error{
		Code: CodeOwnerAlready, Name: "OwnerAlready", message: "recipient already owns the kitty",
	}
	ErrOutOfBound = &Error{
		Code: CodeOutOfBound, Name: "OutOfBound", message: "owner holds the maximum number of kitties",
	}
)
