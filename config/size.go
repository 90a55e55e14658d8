package config

import (
	"reflect"

	"github.com/docker/go-units"
)

type SizeArgument struct {
	Size int64 `arg:"" help:"size in bytes"`
}

func (s *SizeArgument) UnmarshalText(text []byte) (err error) {
	s.Size, err = units.FromHumanSize(string(text))
	return
}

func (s SizeArgument) String() string {
	return units.HumanSize(float64(s.Size))
}

var sizeType = reflect.TypeOf(SizeArgument{})

// sizeHook lets plain numbers be used as sizes in configuration files.
func sizeHook(from, to reflect.Type, data any) (any, error) {
	if to != sizeType {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return SizeArgument{Size: int64(v)}, nil
	case int64:
		return SizeArgument{Size: v}, nil
	case uint64:
		return SizeArgument{Size: int64(v)}, nil
	case float64:
		return SizeArgument{Size: int64(v)}, nil
	}
	return data, nil
}
