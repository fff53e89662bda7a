// Package plugins holds the filters and extensions made available to
// templates. Values are capability-checked when registered so that a
// misconfigured plugin fails at startup rather than on the first render.
package plugins

import (
	"fmt"
	"go/token"
	"reflect"
	"sync"

	"github.com/open2b/scriggo/native"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// Extension contributes a set of template globals.
type Extension interface {
	Declarations() native.Declarations
}

// ExtensionConstructor creates an extension instance.
type ExtensionConstructor func() Extension

// Filter is a named template function.
type Filter struct {
	Name string
	Fn   interface{}
}

// NamedExtension is an instantiated extension.
type NamedExtension struct {
	Name      string
	Extension Extension
}

// Registry is an ordered set of filters and extensions. It is populated
// during configuration and sealed before the first render.
type Registry struct {
	filters    []Filter
	extensions []NamedExtension
	index      map[string]string
	sealed     bool
	mutex      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[string]string),
	}
}

// RegisterFilter adds fn under name. fn must be a non-nil function.
func (r *Registry) RegisterFilter(name string, fn interface{}) error {
	if err := r.checkName("filter", name); err != nil {
		return err
	}

	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return errors.NewInvalidPluginValue("filter", name, fn)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.sealed {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "registry is sealed")
	}
	if kind, dup := r.index[name]; dup {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("filter %q already registered as %s", name, kind))
	}
	r.index[name] = "filter"
	r.filters = append(r.filters, Filter{Name: name, Fn: fn})
	return nil
}

// RegisterExtension invokes ctor and adds the resulting extension under name.
// ctor must be a function without arguments returning a single value that
// implements Extension, such as an ExtensionConstructor or a func() *MyExt.
func (r *Registry) RegisterExtension(name string, ctor interface{}) error {
	if err := r.checkName("extension", name); err != nil {
		return err
	}

	ext, ok := construct(ctor)
	if !ok {
		return errors.NewInvalidPluginValue("extension", name, ctor)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.sealed {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, "registry is sealed")
	}
	if kind, dup := r.index[name]; dup {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("extension %q already registered as %s", name, kind))
	}
	r.index[name] = "extension"
	r.extensions = append(r.extensions, NamedExtension{Name: name, Extension: ext})
	return nil
}

var extensionType = reflect.TypeOf((*Extension)(nil)).Elem()

// construct calls ctor when it is a constructor of a non-nil Extension.
func construct(ctor interface{}) (Extension, bool) {
	v := reflect.ValueOf(ctor)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, false
	}
	t := v.Type()
	if t.NumIn() != 0 || t.NumOut() != 1 || !t.Out(0).Implements(extensionType) {
		return nil, false
	}

	out := v.Call(nil)[0]
	switch out.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func, reflect.Slice, reflect.Chan:
		if out.IsNil() {
			return nil, false
		}
	}
	ext, ok := out.Interface().(Extension)
	return ext, ok
}

// IsIdentifier reports whether name can be referenced from a template.
func IsIdentifier(name string) bool {
	return token.IsIdentifier(name)
}

func (r *Registry) checkName(kind, name string) error {
	if !IsIdentifier(name) {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("%s name %q is not a valid identifier", kind, name))
	}
	return nil
}

// Seal forbids further registration.
func (r *Registry) Seal() {
	r.mutex.Lock()
	r.sealed = true
	r.mutex.Unlock()
}

// Filters returns the filters in registration order.
func (r *Registry) Filters() []Filter {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]Filter, len(r.filters))
	copy(out, r.filters)
	return out
}

// Extensions returns the extensions in registration order.
func (r *Registry) Extensions() []NamedExtension {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]NamedExtension, len(r.extensions))
	copy(out, r.extensions)
	return out
}

// Has reports whether name is taken by a filter or extension.
func (r *Registry) Has(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	_, ok := r.index[name]
	return ok
}
