package grpcapi

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

func stringField(s *structpb.Struct, name string) string {
	v, ok := s.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// intField reads a whole number. JSON clients send numbers as doubles, and
// numeric strings are accepted too.
func intField(s *structpb.Struct, name string) (int, bool, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		f := k.NumberValue
		if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
			return 0, true, fmt.Errorf("%s must be a whole number", name)
		}
		return int(f), true, nil
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(strings.TrimSpace(k.StringValue))
		if err != nil {
			return 0, true, fmt.Errorf("%s must be a number", name)
		}
		return n, true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number", name)
	}
}
