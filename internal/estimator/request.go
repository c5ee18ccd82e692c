package estimator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rewired-gh/resaleoracle/internal/models"
)

// RawRequest is an unvalidated price query as received from an outer surface
// (HTTP query string, bot command, CLI arguments).
type RawRequest struct {
	Brand            string  `json:"brand" validate:"max=100"`
	ItemType         string  `json:"item_type" validate:"max=100"`
	Size             string  `json:"size" validate:"required,size"`
	Condition        string  `json:"condition" validate:"required,condition"`
	Speed            string  `json:"speed" validate:"omitempty,oneof=fast normal premium"`
	VisionConfidence float64 `json:"vision_confidence" validate:"gte=0,lte=1"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("size", func(fl validator.FieldLevel) bool {
		size := models.NormalizeSize(fl.Field().String())
		for _, s := range models.Sizes {
			if s == size {
				return true
			}
		}
		return false
	})
	_ = v.RegisterValidation("condition", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseCondition(fl.Field().String())
		return ok
	})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Parse validates the raw query and converts it into a Request.
func (r RawRequest) Parse() (Request, error) {
	r.Speed = strings.ToLower(strings.TrimSpace(r.Speed))
	if err := validate.Struct(r); err != nil {
		return Request{}, describeValidation(err)
	}
	condition, _ := models.ParseCondition(r.Condition)
	return Request{
		Brand:            strings.TrimSpace(r.Brand),
		ItemType:         strings.TrimSpace(r.ItemType),
		Size:             models.NormalizeSize(r.Size),
		Condition:        condition,
		SaleSpeed:        models.ParseSaleSpeed(r.Speed),
		VisionConfidence: r.VisionConfidence,
	}, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid request: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "size":
		return fmt.Sprintf("size %q is not one of %s", fe.Value(), strings.Join(models.Sizes, ", "))
	case "condition":
		return fmt.Sprintf("condition %q is not recognised", fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	case "gte", "lte":
		return fe.Field() + " must be between 0 and 1"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}
