package handler

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/shortly/shortly/go-server/internal/service"
)

var registerOnce sync.Once

// RegisterValidators adds the "slug" tag to gin's validator engine.
func RegisterValidators(maxSlugLength int) error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		err = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return service.IsSlugShaped(fl.Field().String(), maxSlugLength)
		})
	})
	return err
}
