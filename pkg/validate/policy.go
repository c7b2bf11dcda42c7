package validate

import (
	"errors"
	"fmt"
)

// Policy holds the limits enforced by the built-in validators.
type Policy struct {
	NameMaxLen     int    `env:"TALEBOT_NAME_MAX_LEN,default=50" yaml:"name_max_len"`
	AgeMin         int    `env:"TALEBOT_AGE_MIN,default=2" yaml:"age_min"`
	AgeMax         int    `env:"TALEBOT_AGE_MAX,default=12" yaml:"age_max"`
	ListMaxItems   int    `env:"TALEBOT_LIST_MAX_ITEMS,default=5" yaml:"list_max_items"`
	ListItemMaxLen int    `env:"TALEBOT_LIST_ITEM_MAX_LEN,default=40" yaml:"list_item_max_len"`
	ListDelimiter  string `env:"TALEBOT_LIST_DELIMITER" yaml:"list_delimiter"`
	ThemeMinLen    int    `env:"TALEBOT_THEME_MIN_LEN,default=3" yaml:"theme_min_len"`
	ThemeMaxLen    int    `env:"TALEBOT_THEME_MAX_LEN,default=200" yaml:"theme_max_len"`
	LengthMin      int    `env:"TALEBOT_STORY_LENGTH_MIN,default=1" yaml:"length_min"`
	LengthMax      int    `env:"TALEBOT_STORY_LENGTH_MAX,default=15" yaml:"length_max"`
}

// DefaultPolicy returns the stock limits.
func DefaultPolicy() Policy {
	return Policy{
		NameMaxLen:     50,
		AgeMin:         2,
		AgeMax:         12,
		ListMaxItems:   5,
		ListItemMaxLen: 40,
		ListDelimiter:  ",",
		ThemeMinLen:    3,
		ThemeMaxLen:    200,
		LengthMin:      1,
		LengthMax:      15,
	}
}

// Normalize fills zero limits with the stock values.
func (p Policy) Normalize() Policy {
	d := DefaultPolicy()
	if p.NameMaxLen <= 0 {
		p.NameMaxLen = d.NameMaxLen
	}
	if p.AgeMin <= 0 {
		p.AgeMin = d.AgeMin
	}
	if p.AgeMax <= 0 {
		p.AgeMax = d.AgeMax
	}
	if p.ListMaxItems <= 0 {
		p.ListMaxItems = d.ListMaxItems
	}
	if p.ListItemMaxLen <= 0 {
		p.ListItemMaxLen = d.ListItemMaxLen
	}
	if p.ListDelimiter == "" {
		p.ListDelimiter = d.ListDelimiter
	}
	if p.ThemeMinLen <= 0 {
		p.ThemeMinLen = d.ThemeMinLen
	}
	if p.ThemeMaxLen <= 0 {
		p.ThemeMaxLen = d.ThemeMaxLen
	}
	if p.LengthMin <= 0 {
		p.LengthMin = d.LengthMin
	}
	if p.LengthMax <= 0 {
		p.LengthMax = d.LengthMax
	}
	return p
}

// Validate reports limits that leave a step with no acceptable answer.
func (p Policy) Validate() error {
	var errs []error
	if p.AgeMax < p.AgeMin {
		errs = append(errs, fmt.Errorf("age range is empty: max %d is below min %d", p.AgeMax, p.AgeMin))
	}
	if p.ThemeMaxLen < p.ThemeMinLen {
		errs = append(errs, fmt.Errorf("theme length range is empty: max %d is below min %d", p.ThemeMaxLen, p.ThemeMinLen))
	}
	if p.LengthMax < p.LengthMin {
		errs = append(errs, fmt.Errorf("story length range is empty: max %d is below min %d", p.LengthMax, p.LengthMin))
	}
	return errors.Join(errs...)
}
