package messaging

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/service"
)

// BuildResultProcessor grades decoded build reports.
type BuildResultProcessor interface {
	Process(ctx context.Context, source string, payload dto.BuildResultRequest) (dto.BuildResultResponse, error)
}

// replyMessage is sent back to requesters that asked for the graded result.
type replyMessage struct {
	Success bool                     `json:"success"`
	Error   string                   `json:"error,omitempty"`
	Data    *dto.BuildResultResponse `json:"data,omitempty"`
}

func decodeBuildResult(body []byte) (dto.BuildResultRequest, error) {
	var request dto.BuildResultRequest
	if err := json.Unmarshal(body, &request); err != nil {
		return dto.BuildResultRequest{}, err
	}
	return request, nil
}

// isPermanent reports whether retrying a message can never succeed.
func isPermanent(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var validationErrs validator.ValidationErrors
	return errors.As(err, &syntaxErr) ||
		errors.As(err, &typeErr) ||
		errors.As(err, &validationErrs) ||
		errors.Is(err, service.ErrParticipationNotFound) ||
		errors.Is(err, service.ErrExerciseNotFound)
}

func encodeReply(response dto.BuildResultResponse, err error) []byte {
	reply := replyMessage{Success: err == nil}
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Data = &response
	}
	body, _ := json.Marshal(reply)
	return body
}
