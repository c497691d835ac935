package roster

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// MissingFieldError reports the first required attribute a record lacks.
type MissingFieldError struct {
	Host  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("device %s: missing %s", e.Host, e.Field)
}

// Validate checks a record has everything a session needs.
func (d DeviceRecord) Validate() error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return &MissingFieldError{Host: d.Host, Field: fe.Field()}
	}
	return fmt.Errorf("device %s: invalid %s %q (%s)", d.Host, fe.Field(), fmt.Sprint(fe.Value()), fe.Tag())
}

// MissingAddress reports whether err is the record lacking its management address.
func MissingAddress(err error) bool {
	var mf *MissingFieldError
	return errors.As(err, &mf) && mf.Field == "Address"
}
