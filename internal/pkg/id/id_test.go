package id

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("生成的 ID", t, func() {
		a, b := New(), New()
		So(IsValid(a), ShouldBeTrue)
		So(a, ShouldNotEqual, b)
		So(a < b, ShouldBeTrue)
	})

	Convey("非法 ID", t, func() {
		So(IsValid("not-a-uuid"), ShouldBeFalse)
		So(IsValid(""), ShouldBeFalse)
	})
}
