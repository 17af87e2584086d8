package api

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"
)

// String returns the string field name of s, or "" when absent or not a
// string.
func String(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}

// MaxWholeNumber is the largest integer a Struct number carries exactly.
const MaxWholeNumber = 1 << 53

// Int returns the integral number field name of s. ok is false when the
// field is absent; err is set when it is not a whole number.
func Int(s *structpb.Struct, name string) (n int64, ok bool, err error) {
	if s == nil {
		return 0, false, nil
	}
	v, present := s.GetFields()[name]
	if !present {
		return 0, false, nil
	}
	nv, isNum := v.GetKind().(*structpb.Value_NumberValue)
	if !isNum {
		return 0, true, fmt.Errorf("field %q must be a number", name)
	}
	f := nv.NumberValue
	if f != math.Trunc(f) || math.Abs(f) > MaxWholeNumber {
		return 0, true, fmt.Errorf("field %q must be a whole number", name)
	}
	return int64(f), true, nil
}

// Struct returns the nested object field name of s as a map.
func Struct(s *structpb.Struct, name string) map[string]any {
	if s == nil {
		return nil
	}
	return s.GetFields()[name].GetStructValue().AsMap()
}
