package presence

import (
	"reflect"
	"testing"
)

func TestDefaultedRoles(t *testing.T) {
	t.Parallel()

	if got := defaultedRoles(nil); !reflect.DeepEqual(got, []string{"MEMBER"}) {
		t.Errorf("defaultedRoles(nil) = %v, want [MEMBER]", got)
	}
	if got := defaultedRoles([]string{}); !reflect.DeepEqual(got, []string{"MEMBER"}) {
		t.Errorf("defaultedRoles(empty) = %v, want [MEMBER]", got)
	}
	if got := defaultedRoles([]string{"STAFF"}); !reflect.DeepEqual(got, []string{"STAFF"}) {
		t.Errorf("defaultedRoles([STAFF]) = %v, want [STAFF]", got)
	}
}
