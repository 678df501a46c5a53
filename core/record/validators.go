package record

import (
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/tmdent/clinlog/core"
)

var (
	logStatusTag  = "logstatus"
	logStatusText = "a record can only be logged as planned, in_progress or completed"

	reviewStatusTag  = "reviewstatus"
	reviewStatusText = "a review verdict must be verified or rejected"
)

// InitValidators registers record validators on the validator instance.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(logStatusTag, statusValidation(LogStatuses))
	core.RegisterCustomTranslation(validate, translator, logStatusTag, logStatusText)

	_ = validate.RegisterValidation(reviewStatusTag, statusValidation(ReviewStatuses))
	core.RegisterCustomTranslation(validate, translator, reviewStatusTag, reviewStatusText)
}

// statusValidation checks that the field value is one of the allowed statuses
func statusValidation(allowed []string) validator.Func {
	sorted := make([]string, len(allowed))
	copy(sorted, allowed)
	sort.Strings(sorted)

	return func(fl validator.FieldLevel) bool {
		status := fl.Field().String()
		idx := sort.SearchStrings(sorted, status)
		return idx < len(sorted) && sorted[idx] == status
	}
}
