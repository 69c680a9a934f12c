package rpc

import (
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"xdao.co/calm/model"
)

// mapRPC turns a gRPC status back into the server's model.CodedError.
// Statuses that did not come from mapErr are returned unchanged.
func mapRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	code, msg, found := strings.Cut(st.Message(), ": ")
	if found {
		if want, known := statusCodes[model.ErrorCode(code)]; known && want == st.Code() {
			return model.NewError(model.ErrorCode(code), msg)
		}
	}
	// Best-effort for statuses raised outside mapErr.
	switch st.Code() {
	case codes.NotFound:
		return model.NewError(model.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return model.NewError(model.ErrInvalidRequest, st.Message())
	case codes.DataLoss:
		return model.NewError(model.ErrCIDMismatch, st.Message())
	default:
		return err
	}
}

// Code reports the model error code carried by err, or "".
func Code(err error) model.ErrorCode {
	var coded *model.CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}
