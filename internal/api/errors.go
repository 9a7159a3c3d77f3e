package api

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"liveclass/internal/apperr"
	"liveclass/internal/logging"
)

var registerTagNames sync.Once

// useJSONFieldNames makes binding errors report json field names instead of
// Go struct names.
func useJSONFieldNames() {
	registerTagNames.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
}

// bindJSON decodes the body into v, responding 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, bindingError(err))
		return false
	}
	return true
}

func bindingError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Invalid("body", "malformed JSON")
	}
	out := &apperr.ValidationError{}
	for _, fe := range ve {
		out.Add(fieldPath(fe), describe(fe))
	}
	return out
}

// fieldPath drops the top level struct name from the namespace, so
// "markBulkRequest.records[0].status" becomes "records[0].status".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "email":
		return "must be a valid address"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return "is invalid"
	}
}

// respondError writes the error envelope for err and aborts the chain.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"error": apperr.Message(err), "kind": apperr.KindOf(err)}

	var vErr *apperr.ValidationError
	if errors.As(err, &vErr) {
		body["fields"] = vErr.Fields
	}
	if status >= 500 {
		logging.FromContext(c.Request.Context(), nil).Error("request failed", logging.Err(err)...)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
