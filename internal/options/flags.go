package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// CategoriesValue is a pflag.Value for --categories. The first Set replaces
// the default; later ones add to it.
type CategoriesValue struct {
	target  *[]string
	changed bool
}

var _ pflag.Value = (*CategoriesValue)(nil)

// NewCategoriesValue binds a CategoriesValue to target.
func NewCategoriesValue(target *[]string) *CategoriesValue {
	return &CategoriesValue{target: target}
}

func (v *CategoriesValue) String() string {
	if v.target == nil {
		return ""
	}
	return strings.Join(*v.target, ",")
}

func (v *CategoriesValue) Set(s string) error {
	if !v.changed {
		*v.target = nil
		v.changed = true
	}
	*v.target = AddCategories(*v.target, ParseCategories(s)...)
	return nil
}

func (v *CategoriesValue) Type() string { return "names" }

// IgnoreValue is a pflag.Value for --ignore. Every Set adds IDs.
type IgnoreValue struct {
	target *IgnoreList
}

var _ pflag.Value = (*IgnoreValue)(nil)

// NewIgnoreValue binds an IgnoreValue to target.
func NewIgnoreValue(target *IgnoreList) *IgnoreValue {
	return &IgnoreValue{target: target}
}

func (v *IgnoreValue) String() string {
	if v.target == nil || *v.target == nil {
		return ""
	}
	return strings.Join(v.target.IDs(), ",")
}

func (v *IgnoreValue) Set(s string) error {
	if *v.target == nil {
		*v.target = IgnoreList{}
	}
	v.target.Merge(ParseIgnore(s))
	return nil
}

func (v *IgnoreValue) Type() string { return "ids" }
