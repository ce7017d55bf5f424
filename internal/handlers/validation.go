package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/multiguard/pkg/errors"
	appValidator "github.com/charlesng35/multiguard/pkg/validator"
)

// bindAndValidate binds a JSON or form payload into dest and runs struct
// validation rules. On failure the error is answered through fail and false is
// returned; back is where browser clients are sent to correct their input.
func bindAndValidate[T any](c *gin.Context, dest *T, back string) bool {
	if err := c.ShouldBind(dest); err != nil {
		fail(c, back, appErrors.NewBadRequest("invalid request payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		fail(c, back, validationError(err))
		return false
	}

	return true
}

// validationError maps validator failures to a field-keyed AppError.
func validationError(err error) *appErrors.AppError {
	var failures appValidator.ValidationErrors
	if !errors.As(err, &failures) || len(failures) == 0 {
		return appErrors.NewBadRequest("invalid request payload")
	}

	fields := make(map[string]string, len(failures))
	for _, failure := range failures {
		if _, seen := fields[failure.Field]; seen {
			continue
		}
		fields[failure.Field] = failure.Message()
	}
	return appErrors.NewValidationFields(fields)
}
