package middleware

import (
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/pkg/errors"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

var codeRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/-]{0,63}$`)

// InitValidator registers the custom tags on gin's validator engine
//
//	qty   decimal.Decimal strictly greater than zero
//	qty0  decimal.Decimal greater than or equal to zero
//	code  warehouse code (location, SKU, lot, container)
func InitValidator() *validator.Validate {
	validateOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			v = validator.New()
		}
		_ = v.RegisterValidation("qty", validatePositiveQty)
		_ = v.RegisterValidation("qty0", validateNonNegativeQty)
		_ = v.RegisterValidation("code", validateCode)
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		validate = v
	})
	return validate
}

func decimalField(fl validator.FieldLevel) (decimal.Decimal, bool) {
	switch v := fl.Field().Interface().(type) {
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, false
		}
		return *v, true
	}
	return decimal.Zero, false
}

func validatePositiveQty(fl validator.FieldLevel) bool {
	d, ok := decimalField(fl)
	return ok && d.IsPositive()
}

func validateNonNegativeQty(fl validator.FieldLevel) bool {
	d, ok := decimalField(fl)
	return ok && !d.IsNegative()
}

func validateCode(fl validator.FieldLevel) bool {
	return codeRegex.MatchString(fl.Field().String())
}

// ValidationErrorFormatter maps field names to human-readable messages
func ValidationErrorFormatter(err error) map[string]string {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) {
		for _, e := range verrs {
			fields[e.Field()] = formatValidationError(e)
		}
	}
	return fields
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	case "qty":
		return "must be a quantity greater than zero"
	case "qty0":
		return "must be a quantity of zero or more"
	case "code":
		return "must be a valid code"
	default:
		return "is invalid"
	}
}

// BindAndValidate binds the JSON body into obj and validates it
func BindAndValidate(c *gin.Context, obj interface{}) *errors.AppError {
	if err := c.ShouldBindJSON(obj); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) {
			return errors.ErrValidationWithFields("validation failed", ValidationErrorFormatter(verrs))
		}
		return errors.ErrBadRequest("invalid request body: " + err.Error())
	}
	return nil
}
