package cmd

import (
	"path/filepath"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/cobra"
)

func init() {
	govalidator.TagMap["glob"] = func(s string) bool {
		_, err := filepath.Match(s, "")
		return err == nil
	}
}

type Validator interface {
	Validate(c *cobra.Command, args []string) error
}

// Validate populates obj from the environment, checks its `valid` struct
// tags and finally runs its own Validate method if it has one.
func Validate(obj interface{}, c *cobra.Command, args []string) error {
	if err := PopulateFromEnv(obj); err != nil {
		return err
	}
	if _, err := govalidator.ValidateStruct(obj); err != nil {
		return err
	}
	if v, ok := obj.(Validator); ok {
		return v.Validate(c, args)
	}
	return nil
}
