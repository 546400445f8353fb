package cmd

import (
	"reflect"

	"dario.cat/mergo"
	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
)

// PopulateFromEnv fills the zero valued fields of obj from the environment
// variables named in their `env` tags. Values already set (e.g. by flags)
// take precedence.
func PopulateFromEnv(obj interface{}) error {
	s := reflect.ValueOf(obj)
	if s.Kind() != reflect.Ptr {
		return errors.New("not a pointer")
	}
	//Create a zero valued copy of the passed struct
	optionsFromEnv := reflect.New(s.Elem().Type()).Interface()
	if err := envdecode.Decode(optionsFromEnv); err != nil {
		if err == envdecode.ErrNoTargetFieldsAreSet {
			return nil
		}
		return errors.Wrap(err, "decoding environment")
	}
	if err := mergo.Merge(obj, optionsFromEnv); err != nil {
		return errors.Wrap(err, "merging environment")
	}
	return nil
}
